package mail

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"text/template"
	"time"

	"github.com/pkg/errors"
)

// 延滞通知1通分。スイープ側が組み立てる。
type OverdueNotice struct {
	To          string
	StudentName string
	BookTitle   string
	BookAuthor  string
	DueOn       time.Time
	DaysOverdue int
	FineAmount  int
}

type Sender interface {
	SendOverdueNotice(ctx context.Context, n OverdueNotice) error
}

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type SMTPSender struct {
	cfg Config
	// テスト時に差し替える。既定は smtp.SendMail。
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg Config) *SMTPSender {
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

var noticeTmpl = template.Must(template.New("overdue").Parse(
	`From: {{.From}}
To: {{.To}}
Subject: =?UTF-8?B?6L+U5Y205pyf6ZmQ44Gu44GK55+l44KJ44Gb?=
MIME-Version: 1.0
Content-Type: text/plain; charset=UTF-8

{{.StudentName}} さん

貸出中の図書が返却期限を過ぎています。

  書名: {{.BookTitle}}（{{.BookAuthor}}）
  返却期限: {{.DueOn}}
  延滞日数: {{.DaysOverdue}}日
  延滞料金（暫定）: {{.FineAmount}}円

至急、図書室まで返却をお願いします。
`))

func (s *SMTPSender) SendOverdueNotice(ctx context.Context, n OverdueNotice) error {
	if n.To == "" {
		return errors.New("recipient address is empty")
	}

	var buf bytes.Buffer
	err := noticeTmpl.Execute(&buf, struct {
		From        string
		To          string
		StudentName string
		BookTitle   string
		BookAuthor  string
		DueOn       string
		DaysOverdue int
		FineAmount  int
	}{
		From:        s.cfg.From,
		To:          n.To,
		StudentName: n.StudentName,
		BookTitle:   n.BookTitle,
		BookAuthor:  n.BookAuthor,
		DueOn:       n.DueOn.Format("2006-01-02"),
		DaysOverdue: n.DaysOverdue,
		FineAmount:  n.FineAmount,
	})
	if err != nil {
		return errors.Wrap(err, "render overdue notice")
	}

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)

	// net/smtp はcontextを取らないので、キャンセル済みならここで打ち切る
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.send(addr, auth, s.cfg.From, []string{n.To}, buf.Bytes()); err != nil {
		return errors.Wrapf(err, "send overdue notice to %s", n.To)
	}
	return nil
}
