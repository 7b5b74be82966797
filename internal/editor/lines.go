package editor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/rplanner/internal/document"
)

// EditLines appends every line read from r to one text fragment while the
// scheduler ticks every period in the background, so the note is flushed
// whenever input pauses long enough. Edits still pending when r is exhausted
// are flushed before returning.
func (s *Session) EditLines(ctx context.Context, r io.Reader, id document.NoteID, fragmentNum int, period time.Duration) error {
	runCtx, stop := context.WithCancel(ctx)
	defer stop()

	g, gCtx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		s.Run(gCtx, period)
		return nil
	})

	readErr := s.appendLines(ctx, r, id, fragmentNum)
	stop()
	_ = g.Wait()
	if readErr != nil {
		return readErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushPending(ctx, id)
}

func (s *Session) appendLines(ctx context.Context, r io.Reader, id document.NoteID, fragmentNum int) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.AppendLine(id, fragmentNum, scanner.Text()); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("editor: read lines: %w", err)
	}
	return nil
}
