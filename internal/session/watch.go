package session

import (
	"context"
	"fmt"
	"slices"

	"dovakin0007.com/notebook-grpc/internal/models"
	"dovakin0007.com/notebook-grpc/internal/store"
)

// keepOrder returns got ordered like want, with tags want does not know
// appended in their store order.
func keepOrder(want, got []string) []string {
	out := make([]string, 0, len(got))
	for _, t := range want {
		if slices.Contains(got, t) {
			out = append(out, t)
		}
	}
	for _, t := range got {
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out
}

// Watch reloads the active notebook whenever another user changes it and
// then calls onChange, which may be nil. It returns once the subscription is
// live; watching stops when ctx ends or the stream fails.
func (s *Session) Watch(ctx context.Context, onChange func(models.ChangeEvent)) error {
	w, ok := s.store.(store.Watcher)
	if !ok {
		return fmt.Errorf("%w: store does not publish changes", models.ErrTransportFailure)
	}
	uid, nbID, err := s.activeIDs()
	if err != nil {
		return err
	}
	evs, err := w.Watch(ctx, uid, nbID)
	if err != nil {
		return err
	}
	s.logger.Debug("watching", "notebook", nbID)
	go func() {
		for ev := range evs {
			if ev.UserID == uid {
				continue
			}
			if _, cur, err := s.activeIDs(); err != nil || cur != nbID {
				continue
			}
			s.logger.Debug("notebook changed", "notebook", nbID, "kind", ev.Kind, "by", ev.UserID)
			if ev.Kind == "dropNotebook" {
				s.close(nbID)
			} else if _, err := s.Refresh(ctx); err != nil {
				s.logger.Warn("refresh after change failed", "notebook", nbID, "error", err)
			}
			if onChange != nil {
				onChange(ev)
			}
		}
	}()
	return nil
}
