package telegram

import (
	"errors"
	"testing"

	tele "gopkg.in/telebot.v4"

	"pmbot/internal/transport"
)

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want transport.ErrorKind
	}{
		{"blocked (403)", tele.ErrBlockedByUser, transport.KindUnreachable},
		{"never started (403)", tele.ErrNotStartedByUser, transport.KindUnreachable},
		{"chat not found", tele.ErrChatNotFound, transport.KindUnreachable},
		{"flood wait", tele.FloodError{RetryAfter: 3}, transport.KindTransient},
		{"server error", &tele.Error{Code: 502, Description: "bad gateway"}, transport.KindTransient},
		{"bad request", &tele.Error{Code: 400, Description: "message is empty"}, transport.KindPermanent},
		{"network failure", errors.New("dial tcp: i/o timeout"), transport.KindTransient},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := transport.KindOf(classify(tt.err)); got != tt.want {
				t.Fatalf("classify kind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMention(t *testing.T) {
	t.Parallel()
	a := &Adapter{}
	if got := a.Mention("12345"); got != "[user](tg://user?id=12345)" {
		t.Fatalf("numeric mention = %q", got)
	}
	if got := a.Mention("alice"); got != "@alice" {
		t.Fatalf("username mention = %q", got)
	}
}
