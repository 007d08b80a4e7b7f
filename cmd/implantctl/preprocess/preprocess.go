package preprocesscmder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/zhouzirui/implantai/backend/internal/service/imaging"
)

const preprocessLongDesc string = `Downscale and re-encode image files exactly as they are before being
attached to a message.

Every file is decoded, scaled so its longer side fits --max-dimension
(never upscaled) and re-encoded as JPEG. Files that cannot be decoded
are reported and skipped; the others are still processed.

Examples:
  implantctl preprocess cbct-36.png opg.webp
  implantctl preprocess --out ./scaled --max-dimension 768 *.png`

const preprocessShortDesc string = "Preview image downscaling"

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("244"))
)

type preprocessCommander struct {
	outDir       string
	maxDimension int
	quality      int
}

func NewPreprocessCmd() *cobra.Command {
	cmder := &preprocessCommander{}

	cmd := &cobra.Command{
		Use:   "preprocess <files...>",
		Short: preprocessShortDesc,
		Long:  preprocessLongDesc,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmder.run(cmd.OutOrStdout(), args)
		},
	}

	cmd.Flags().StringVarP(&cmder.outDir, "out", "o", "", "Directory to write the re-encoded JPEG files to")
	cmd.Flags().IntVar(&cmder.maxDimension, "max-dimension", imaging.DefaultMaxDimension, "Longest side in pixels after scaling")
	cmd.Flags().IntVar(&cmder.quality, "quality", imaging.DefaultQuality, "JPEG quality (1-100)")

	return cmd
}

func (c *preprocessCommander) run(out io.Writer, paths []string) error {
	opts := imaging.Options{MaxDimension: c.maxDimension, Quality: c.quality}

	batch := imaging.PreprocessAll(FilesFromPaths(paths), opts)

	if c.outDir != "" && len(batch.Results) > 0 {
		if err := os.MkdirAll(c.outDir, 0o755); err != nil {
			return fmt.Errorf("could not create output directory: %w", err)
		}
	}

	for _, res := range batch.Results {
		line := fmt.Sprintf("%s %s %s %dx%d %d bytes",
			okStyle.Render("ok"), res.Name, dimStyle.Render(res.SourceFormat+" ->"),
			res.Width, res.Height, len(res.Image.Data))

		if c.outDir != "" {
			target := filepath.Join(c.outDir, strings.TrimSuffix(filepath.Base(res.Name), filepath.Ext(res.Name))+".jpg")
			if err := os.WriteFile(target, res.Image.Data, 0o644); err != nil {
				return fmt.Errorf("could not write %s: %w", target, err)
			}
			line += " " + dimStyle.Render("-> "+target)
		}
		fmt.Fprintln(out, line)
	}

	for _, fe := range batch.Errors {
		fmt.Fprintf(out, "%s %s: %v\n", failStyle.Render("skip"), fe.Name, fe.Err)
	}

	if len(batch.Results) == 0 {
		return fmt.Errorf("no file could be processed")
	}
	return nil
}

// FilesFromPaths wraps local paths for imaging.PreprocessAll.
func FilesFromPaths(paths []string) []imaging.File {
	files := make([]imaging.File, 0, len(paths))
	for _, p := range paths {
		files = append(files, imaging.File{
			Name: p,
			Open: func() (io.ReadCloser, error) { return os.Open(p) },
		})
	}
	return files
}
