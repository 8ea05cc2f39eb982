package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single request or response frame.
const MaxFrameSize = 64 << 20

type readResult struct {
	content []byte
	err     error
}

// WriteFrame writes content prefixed with its size as a little-endian
// uint32. The write can be abandoned through ctx, in which case the
// background write may still complete.
func WriteFrame(ctx context.Context, w io.Writer, content []byte) error {
	if len(content) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(content))
	}

	done := make(chan error, 1)
	go func() {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(content))); err != nil {
			done <- fmt.Errorf("failed to write frame size: %w", err)
			return
		}
		if _, err := w.Write(content); err != nil {
			done <- fmt.Errorf("failed to write frame content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadFrame reads one frame written by WriteFrame.
func ReadFrame(ctx context.Context, r io.Reader) ([]byte, error) {
	done := make(chan readResult, 1)
	go func() {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			done <- readResult{err: fmt.Errorf("failed to read frame size: %w", err)}
			return
		}
		if size > MaxFrameSize {
			done <- readResult{err: fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, size)}
			return
		}

		content := make([]byte, size)
		if _, err := io.ReadFull(r, content); err != nil {
			done <- readResult{err: fmt.Errorf("failed to read frame content: %w", err)}
			return
		}
		done <- readResult{content: content}
	}()

	select {
	case res := <-done:
		return res.content, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
