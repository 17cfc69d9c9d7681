package presentation

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// RenderResult describes a video written by RenderFile.
type RenderResult struct {
	Output   string
	Slides   int
	Segments int
	Skipped  []int
}

// RenderFile runs the whole pipeline on a deck without storing a session and
// writes the video to out. Nothing is left behind in the scratch root.
func (s *Service) RenderFile(ctx context.Context, deckPath, out string) (*RenderResult, error) {
	data, err := os.ReadFile(deckPath)
	if err != nil {
		return nil, fmt.Errorf("read deck: %w", err)
	}

	sess, err := s.build(ctx, deckPath, data)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Error("remove scratch dir", "dir", sess.Dir, "error", err)
		}
	}()

	res, err := s.compose(ctx, sess)
	if err != nil {
		return nil, s.stageFailed(StageCompose, sess.Filename, err)
	}

	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	if err := moveFile(res.Path, out); err != nil {
		return nil, err
	}

	s.logger.Info("video written", "deck", deckPath, "output", out, "segments", res.Segments)
	return &RenderResult{
		Output:   out,
		Slides:   len(sess.Slides),
		Segments: res.Segments,
		Skipped:  res.Skipped,
	}, nil
}

// moveFile renames src to dst, copying when they are on different devices.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open video: %w", err)
	}
	defer in.Close()

	tmp := dst + ".part"
	outFile, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	if _, err := io.Copy(outFile, in); err != nil {
		outFile.Close()
		os.Remove(tmp)
		return fmt.Errorf("copy video: %w", err)
	}
	if err := outFile.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close output: %w", err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename output: %w", err)
	}
	return nil
}
