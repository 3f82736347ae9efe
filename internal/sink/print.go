package sink

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/local/docsplit/internal/engine"
)

// PrintFileName is the name of the file handed to the viewer.
const PrintFileName = "print_ready.pdf"

// Launcher opens a file in an external program.
type Launcher func(ctx context.Context, viewer, path string) error

// StartViewer launches viewer on path without waiting for it to exit.
func StartViewer(ctx context.Context, viewer, path string) error {
	cmd := exec.Command(viewer, path)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch %s: %w", viewer, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			log.Debug().Err(err).Str("viewer", viewer).Msg("print viewer exited with error")
		}
	}()
	return nil
}

// Print stages the output as print_ready.pdf in a private directory under Dir
// and hands it to the viewer, which owns it afterwards. The janitor sweeps
// the directory once it is older than the print retention.
type Print struct {
	Dir    string
	Viewer string
	Launch Launcher
}

func (p *Print) Validate(ctx context.Context) error {
	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("%w: %v", engine.ErrDestinationUnwritable, err)
	}
	return checkWritable(p.Dir)
}

func (p *Print) Commit(ctx context.Context, staged string) (string, error) {
	dir, err := os.MkdirTemp(p.Dir, "print-")
	if err != nil {
		return "", fmt.Errorf("%w: %v", engine.ErrDestinationUnwritable, err)
	}
	target := filepath.Join(dir, PrintFileName)
	if err := place(staged, target); err != nil {
		os.RemoveAll(dir)
		return "", err
	}

	launch := p.Launch
	if launch == nil {
		launch = StartViewer
	}
	if p.Viewer != "" {
		if err := launch(ctx, p.Viewer, target); err != nil {
			os.RemoveAll(dir)
			return "", err
		}
	}
	log.Info().Str("file", target).Str("viewer", p.Viewer).Msg("print file handed to viewer")
	return target, nil
}
