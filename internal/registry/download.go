package registry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

// PackageURL expands the package URL template for one version.
func (f *Fetcher) PackageURL(id, version string) string {
	r := strings.NewReplacer("{id}", id, "{version}", version)
	return r.Replace(f.endpoints.PackageTemplate)
}

// DownloadPackage downloads the zip for id@version into destDir and returns
// the path of the downloaded file.
func (f *Fetcher) DownloadPackage(ctx context.Context, id, version, destDir string) (string, error) {
	if f.endpoints.PackageTemplate == "" {
		return "", fmt.Errorf("no package URL template configured")
	}
	url := f.PackageURL(id, version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", &NetworkError{Op: "package download", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &NetworkError{Op: "package download", URL: url,
			Err: fmt.Errorf("server returned status %d", resp.StatusCode)}
	}

	if err := f.fs.MkdirAll(destDir, 0755); err != nil {
		return "", fmt.Errorf("creating download directory: %w", err)
	}
	destPath := filepath.Join(destDir, fmt.Sprintf("%s-%s.zip", id, version))
	out, err := f.fs.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("creating download file: %w", err)
	}

	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		_ = f.fs.Remove(destPath)
		return "", fmt.Errorf("writing download: %w", err)
	}
	if err := out.Close(); err != nil {
		return "", fmt.Errorf("closing download: %w", err)
	}
	return destPath, nil
}
