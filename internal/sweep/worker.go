package sweep

import (
	"context"
	"log"
	"time"
)

// Start は日次スイープのワーカーを起動する。
// 毎分時刻を見て、設定時刻の分に一致したら 1 回実行する。
// DevIntervalMinutes > 0 のときは開発用に固定間隔で回す。
func (s *Service) Start(ctx context.Context, hour, devIntervalMinutes int) {
	go func() {
		if devIntervalMinutes > 0 {
			log.Printf("[INFO] sweep worker started (every %d min)", devIntervalMinutes)
			ticker := time.NewTicker(time.Duration(devIntervalMinutes) * time.Minute)
			defer ticker.Stop()
			s.RunSweep(ctx)
			for {
				select {
				case <-ctx.Done():
					log.Println("[INFO] sweep worker stopped")
					return
				case <-ticker.C:
					s.RunSweep(ctx)
				}
			}
		}

		log.Printf("[INFO] sweep worker started (daily at %02d:00)", hour)
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Println("[INFO] sweep worker stopped")
				return
			case <-ticker.C:
				now := time.Now()
				if now.Hour() == hour && now.Minute() == 0 {
					s.RunSweep(ctx)
				}
			}
		}
	}()
}
