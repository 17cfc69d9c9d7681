package extractor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/nikhilbhutani/slidecast/pkg/executor"
)

// SofficeRenderer renders slides by converting the deck to PDF with LibreOffice
// and rasterising each page with pdftoppm.
type SofficeRenderer struct {
	exec        executor.Executor
	sofficePath string
	pdftoppm    string
	dpi         int
}

func NewSofficeRenderer(runner executor.Executor, sofficePath, pdftoppmPath string, dpi int) *SofficeRenderer {
	if dpi <= 0 {
		dpi = 96
	}
	return &SofficeRenderer{
		exec:        runner,
		sofficePath: lookPath(sofficePath, "soffice"),
		pdftoppm:    lookPath(pdftoppmPath, "pdftoppm"),
		dpi:         dpi,
	}
}

func lookPath(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	if path, err := exec.LookPath(fallback); err == nil {
		return path
	}
	return fallback
}

// IsAvailable reports whether both binaries can be started.
func (r *SofficeRenderer) IsAvailable(ctx context.Context) bool {
	if _, err := r.exec.Execute(ctx, r.sofficePath, "--version"); err != nil {
		return false
	}
	_, err := r.exec.Execute(ctx, r.pdftoppm, "-v")
	return err == nil
}

func (r *SofficeRenderer) Render(ctx context.Context, deckPath, workDir string) ([][]byte, error) {
	// A private profile keeps concurrent conversions from fighting over the user profile lock.
	profile := "-env:UserInstallation=file://" + filepath.ToSlash(filepath.Join(workDir, "lo-profile"))
	if _, err := r.exec.Execute(ctx, r.sofficePath,
		"--headless", profile, "--convert-to", "pdf", "--outdir", workDir, deckPath,
	); err != nil {
		return nil, fmt.Errorf("convert to pdf: %w", err)
	}

	pdfPath := filepath.Join(workDir, strings.TrimSuffix(filepath.Base(deckPath), filepath.Ext(deckPath))+".pdf")
	pageCount, err := countPages(pdfPath)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("rendered pdf has no pages")
	}

	prefix := filepath.Join(workDir, "page")
	if _, err := r.exec.Execute(ctx, r.pdftoppm, "-png", "-r", strconv.Itoa(r.dpi), pdfPath, prefix); err != nil {
		return nil, fmt.Errorf("rasterise pdf: %w", err)
	}

	files, err := pageFiles(workDir)
	if err != nil {
		return nil, err
	}
	if len(files) != pageCount {
		return nil, fmt.Errorf("expected %d page images, found %d", pageCount, len(files))
	}

	pages := make([][]byte, 0, len(files))
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("read page image: %w", err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}

func countPages(path string) (int, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open rendered pdf: %w", err)
	}
	defer f.Close()
	return reader.NumPage(), nil
}

// pageFiles lists pdftoppm output (page-1.png, page-01.png, ...) in page order.
func pageFiles(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}

	type page struct {
		path string
		n    int
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		base := strings.TrimSuffix(filepath.Base(m), ".png")
		n, err := strconv.Atoi(strings.TrimPrefix(base, "page-"))
		if err != nil {
			continue
		}
		pages = append(pages, page{path: m, n: n})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([]string, len(pages))
	for i, p := range pages {
		out[i] = p.path
	}
	return out, nil
}
