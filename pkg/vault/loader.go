package vault

import (
	"context"
	"errors"

	"github.com/ispacehq/ivault/pkg/audit"
	"github.com/ispacehq/ivault/pkg/catalog"
	"github.com/ispacehq/ivault/pkg/filevault"
)

// DocumentLoad is a handle to an in-flight background document decrypt.
// Cancel abandons the load; a cancelled or superseded result is
// discarded, never delivered.
type DocumentLoad struct {
	cancel context.CancelFunc
	done   chan struct{}

	data []byte
	err  error
}

// Done is closed when the load finishes, successfully or not.
func (l *DocumentLoad) Done() <-chan struct{} {
	return l.done
}

// Cancel abandons the load. The result, if the decrypt was already
// under way, is discarded.
func (l *DocumentLoad) Cancel() {
	l.cancel()
}

// Wait blocks until the load finishes and returns its result. After
// Cancel, Wait returns context.Canceled.
func (l *DocumentLoad) Wait() ([]byte, error) {
	<-l.done
	return l.data, l.err
}

// ReadDocument synchronously decrypts a document item's content. The
// session must be unlocked.
func (s *Service) ReadDocument(item catalog.StoredItem) ([]byte, error) {
	return s.readDocument(context.Background(), item)
}

// LoadDocument starts a background decrypt of a document item's content
// and returns immediately. Detail views kick this off on open and
// cancel it when dismissed.
func (s *Service) LoadDocument(item catalog.StoredItem) *DocumentLoad {
	ctx, cancel := context.WithCancel(context.Background())
	l := &DocumentLoad{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(l.done)
		l.data, l.err = s.readDocument(ctx, item)
		if l.err != nil {
			l.data = nil
		}
	}()
	return l
}

func (s *Service) readDocument(ctx context.Context, item catalog.StoredItem) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if item.Type != catalog.TypeDocument {
		return nil, ErrInvalidPayload
	}
	if err := s.session.RequireUnlocked(); err != nil {
		return nil, err
	}

	data, err := s.files.Read(filevault.FileNameForItem(item.ID))

	// Results for cancelled loads are discarded even when the read
	// succeeded: the caller has moved on.
	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if err != nil {
		if errors.Is(err, filevault.ErrNotFound) {
			return nil, ErrNotFound
		}
		s.auditError(audit.OpItemGet, item.Name, "filevault_read", err)
		return nil, err
	}

	// The item may have been deleted while the decrypt ran; its content
	// must not surface afterwards.
	if !s.hasItem(item.ID) {
		return nil, ErrNotFound
	}

	s.auditSuccess(audit.OpItemGet, item.Name)
	return data, nil
}
