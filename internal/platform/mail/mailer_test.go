package mail

import (
	"context"
	"net/smtp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testNotice() OverdueNotice {
	return OverdueNotice{
		To:          "student@example.jp",
		StudentName: "山田太郎",
		BookTitle:   "吾輩は猫である",
		BookAuthor:  "夏目漱石",
		DueOn:       time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC),
		DaysOverdue: 4,
		FineAmount:  40,
	}
}

func TestSendOverdueNotice(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte

	s := &SMTPSender{
		cfg: Config{Host: "smtp.example.jp", Port: 587, From: "library@example.jp"},
		send: func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
			gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
			return nil
		},
	}

	err := s.SendOverdueNotice(context.Background(), testNotice())
	require.NoError(t, err)

	assert.Equal(t, "smtp.example.jp:587", gotAddr)
	assert.Equal(t, "library@example.jp", gotFrom)
	assert.Equal(t, []string{"student@example.jp"}, gotTo)

	body := string(gotMsg)
	assert.Contains(t, body, "To: student@example.jp")
	assert.Contains(t, body, "吾輩は猫である")
	assert.Contains(t, body, "2025-05-10")
	assert.Contains(t, body, "4日")
	assert.Contains(t, body, "40円")
}

func TestSendOverdueNoticeEmptyRecipient(t *testing.T) {
	s := &SMTPSender{cfg: Config{}, send: func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send should not be called")
		return nil
	}}

	n := testNotice()
	n.To = ""
	err := s.SendOverdueNotice(context.Background(), n)
	assert.Error(t, err)
}

func TestSendOverdueNoticeCancelledContext(t *testing.T) {
	called := false
	s := &SMTPSender{cfg: Config{}, send: func(string, smtp.Auth, string, []string, []byte) error {
		called = true
		return nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := s.SendOverdueNotice(ctx, testNotice())
	assert.Error(t, err)
	assert.False(t, called)
}
