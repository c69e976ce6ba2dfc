// Package download fetches the application firmware hex image when it
// is configured as a URL instead of a local path.
package download

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
)

var (
	fetchRetryDelay = 4 * time.Second
	// allow up to 5 minutes for fetching over slow factory uplinks
	fetchClientTimeout = 300 * time.Second

	ErrDownload = errors.New("error downloading file")
	ErrChecksum = errors.New("error validating file checksum")
	ErrFormat   = errors.New("bad checksum format")
)

// FromURLToFile fetches the file into dst
func FromURLToFile(ctx context.Context, fileURL, dst string) error {
	fileHandle, err := os.Create(dst)
	if err != nil {
		return err
	}

	defer fileHandle.Close()

	req, err := http.NewRequestWithContext(ctx, "GET", fileURL, http.NoBody)
	if err != nil {
		return err
	}

	requestRetryable, err := retryablehttp.FromRequest(req)
	if err != nil {
		return err
	}

	client := retryablehttp.NewClient()
	client.RetryWaitMin = fetchRetryDelay
	client.Logger = nil
	client.HTTPClient.Timeout = fetchClientTimeout

	resp, err := client.Do(requestRetryable)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return errors.Wrap(ErrDownload, fmt.Sprintf("URL: %s, status code %s", fileURL, resp.Status))
	}

	_, err = io.Copy(fileHandle, resp.Body)

	return err
}

// ChecksumValidate verifies the file digest, checksums with no prefix
// default to md5sum.
func ChecksumValidate(filename, checksum string) error {
	if !strings.Contains(checksum, ":") {
		return checksumValidateMD5(filename, checksum)
	}

	parts := strings.Split(checksum, ":")
	if len(parts) != 2 {
		return errors.Wrap(ErrFormat, "invalid checksum: "+checksum)
	}

	switch parts[0] {
	case "md5sum":
		return checksumValidateMD5(filename, parts[1])
	default:
		return errors.Wrap(ErrFormat, "unsupported digest: "+parts[0])
	}
}

func checksumValidateMD5(filename, checksum string) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}

	defer f.Close()

	// nolint:gosec // md5 is the digest the firmware publishing pipeline provides.
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}

	expected, err := hex.DecodeString(checksum)
	if err != nil {
		return errors.Wrap(ErrFormat, checksum)
	}

	if !bytes.Equal(h.Sum(nil), expected) {
		return errors.Wrap(ErrChecksum, fmt.Sprintf("expected md5sum %s for %s", checksum, filename))
	}

	return nil
}
