package notifier

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumenfolio/portal-backend/pkg/db/models"
	"github.com/lumenfolio/portal-backend/pkg/enums"
	"github.com/lumenfolio/portal-backend/pkg/logger"
)

type fakeMailer struct {
	mu       sync.Mutex
	messages []Message
	err      error
	sent     chan struct{}
}

func newFakeMailer(err error) *fakeMailer {
	return &fakeMailer{err: err, sent: make(chan struct{}, 8)}
}

func (f *fakeMailer) Send(ctx context.Context, msg Message) error {
	f.mu.Lock()
	f.messages = append(f.messages, msg)
	f.mu.Unlock()
	f.sent <- struct{}{}
	return f.err
}

func (f *fakeMailer) last() Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.messages) == 0 {
		return Message{}
	}
	return f.messages[len(f.messages)-1]
}

func waitForSend(t *testing.T, mailer *fakeMailer) {
	t.Helper()
	select {
	case <-mailer.sent:
	case <-time.After(2 * time.Second):
		t.Fatal("mail was never sent")
	}
}

func testService(t *testing.T, mailer Mailer) Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "notifier-test", Output: io.Discard})
	svc, err := NewService(mailer, logg, "owner@lumenfolio.test")
	require.NoError(t, err)
	return svc
}

func TestProposalShared(t *testing.T) {
	mailer := newFakeMailer(nil)
	svc := testService(t, mailer)

	resource := &models.Resource{
		Title:       "Brand Shoot Proposal",
		ClientName:  "Acme Co",
		ClientEmail: "acme@example.com",
	}
	svc.ProposalShared(context.Background(), resource, "https://portal.lumenfolio.test/p/abc")
	waitForSend(t, mailer)

	msg := mailer.last()
	assert.Equal(t, "acme@example.com", msg.To)
	assert.Equal(t, "proposal_shared", msg.Template)
	assert.Equal(t, "https://portal.lumenfolio.test/p/abc", msg.Data["link"])
}

func TestProposalResponseGoesToAdmin(t *testing.T) {
	mailer := newFakeMailer(nil)
	svc := testService(t, mailer)

	note := "please swap the venue shots"
	resource := &models.Resource{Title: "Brand Shoot Proposal", ClientName: "Acme Co"}
	svc.ProposalResponse(context.Background(), resource, enums.ProposalStatusRevised, &note)
	waitForSend(t, mailer)

	msg := mailer.last()
	assert.Equal(t, "owner@lumenfolio.test", msg.To)
	assert.Equal(t, "proposal_response", msg.Template)
	assert.Equal(t, note, msg.Data["note"])
	assert.Contains(t, msg.Subject, "requested changes to")
}

func TestDeliveryFailureIsSwallowed(t *testing.T) {
	mailer := newFakeMailer(errors.New("mail api down"))
	svc := testService(t, mailer)

	resource := &models.Resource{Title: "Gallery", ClientName: "Acme", ClientEmail: "acme@example.com"}
	// Nothing to assert beyond "does not panic, does not block".
	svc.ProposalShared(context.Background(), resource, "link")
	waitForSend(t, mailer)
}

func TestCallerCancellationDoesNotStopSend(t *testing.T) {
	mailer := newFakeMailer(nil)
	svc := testService(t, mailer)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resource := &models.Resource{Title: "Gallery", ClientName: "Acme", ClientEmail: "acme@example.com"}
	svc.ProposalShared(ctx, resource, "link")
	waitForSend(t, mailer)
}

func TestMissingRecipientSkipsSend(t *testing.T) {
	mailer := newFakeMailer(nil)
	svc := testService(t, mailer)

	svc.ProposalShared(context.Background(), &models.Resource{Title: "Gallery"}, "link")
	select {
	case <-mailer.sent:
		t.Fatal("send should be skipped without a recipient")
	case <-time.After(50 * time.Millisecond):
	}
}
