package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// Immich API (v2 stable):
// - POST /api/assets              multipart upload, x-immich-checksum header
// - GET  /api/assets/{id}         asset record with exifInfo sub-record
// - PUT  /api/assets              bulk metadata update, 204 on success
// - GET  /api/albums              all albums as {albumName, id}
// - POST /api/albums              create album, 201 with id
// - PUT  /api/albums/{id}/assets  add assets by id
// Auth: x-api-key: <api key>

const (
	deviceID = "gphoto-migration-tool"

	// Opaque client tag carried in the upload envelope so assets can be
	// traced back to this importer.
	clientMetadataTag = `[{"key":"mobile-app","value":{"source":"gphoto-import"}}]`

	// Metadata and album calls are small; they get a short fixed timeout
	// while uploads use the configured one.
	metaTimeout = 30 * time.Second
)

// transient statuses the shared retry policy covers.
var transientStatus = map[int]bool{
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
}

// Client talks to the Immich server. One instance is shared by all workers;
// the underlying transport pools connections and retries transient statuses
// with backoff, transparently to callers.
type Client struct {
	baseURL       string
	apiKey        string
	rc            *retryablehttp.Client
	uploadTimeout time.Duration
}

func NewClient(cfg *Config) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = cfg.RetryAttempts
	rc.Logger = nil
	rc.CheckRetry = func(ctx context.Context, resp *http.Response, err error) (bool, error) {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		if err != nil {
			return true, nil
		}
		return transientStatus[resp.StatusCode], nil
	}

	uploadTimeout := cfg.UploadTimeout
	if uploadTimeout <= 0 {
		uploadTimeout = 300 * time.Second
	}

	return &Client{
		baseURL:       strings.TrimRight(cfg.ServerURL, "/"),
		apiKey:        cfg.APIKey,
		rc:            rc,
		uploadTimeout: uploadTimeout,
	}
}

// UploadResult is the server's answer to an asset upload. Duplicate means
// the content checksum matched an existing asset and ID names that asset.
type UploadResult struct {
	ID        string
	Duplicate bool
}

type assetUploadResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

// UploadAsset streams the file as a multipart body. The body is built per
// attempt so the retry policy can replay it without buffering the file.
func (c *Client) UploadAsset(ctx context.Context, path, deviceAssetID, checksum string, md Metadata) (UploadResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.uploadTimeout)
	defer cancel()

	body, contentType, err := assetBody(path, deviceAssetID, md)
	if err != nil {
		return UploadResult{}, err
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/assets", body)
	if err != nil {
		return UploadResult{}, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-immich-checksum", checksum)

	resp, err := c.rc.Do(req)
	if err != nil {
		return UploadResult{}, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return UploadResult{}, &StatusError{
			Method: http.MethodPost, Path: "/api/assets",
			Status: resp.StatusCode, Body: strings.TrimSpace(string(b)),
		}
	}

	var out assetUploadResponse
	if err := json.Unmarshal(b, &out); err != nil {
		return UploadResult{}, fmt.Errorf("decode upload response: %w (body=%s)", err, strings.TrimSpace(string(b)))
	}

	// The duplicate marker: 200 with status "duplicate" instead of 201.
	return UploadResult{
		ID:        out.ID,
		Duplicate: resp.StatusCode == http.StatusOK && out.Status == "duplicate",
	}, nil
}

// assetBody returns a body factory producing a fresh streaming multipart
// reader per attempt, all attempts sharing one boundary so the Content-Type
// header stays valid.
func assetBody(path, deviceAssetID string, md Metadata) (retryablehttp.ReaderFunc, string, error) {
	boundary := multipart.NewWriter(io.Discard).Boundary()

	fields := [][2]string{
		{"deviceId", deviceID},
		{"deviceAssetId", deviceAssetID},
		{"filename", filepath.Base(path)},
		{"metadata", clientMetadataTag},
	}
	if md.CreatedAt != "" {
		fields = append(fields,
			[2]string{"fileCreatedAt", md.CreatedAt},
			[2]string{"fileModifiedAt", md.CreatedAt},
		)
	}

	fn := func() (io.Reader, error) {
		pr, pw := io.Pipe()
		mw := multipart.NewWriter(pw)
		if err := mw.SetBoundary(boundary); err != nil {
			return nil, err
		}

		go func() {
			err := func() error {
				for _, field := range fields {
					if err := mw.WriteField(field[0], field[1]); err != nil {
						return err
					}
				}
				part, err := mw.CreateFormFile("assetData", filepath.Base(path))
				if err != nil {
					return err
				}
				f, err := os.Open(path)
				if err != nil {
					return err
				}
				defer f.Close()
				if _, err := io.Copy(part, f); err != nil {
					return err
				}
				return mw.Close()
			}()
			if err != nil {
				pw.CloseWithError(err)
				return
			}
			pw.Close()
		}()

		return pr, nil
	}

	return fn, "multipart/form-data; boundary=" + boundary, nil
}

// ExifInfo is the recorded EXIF sub-record of a remote asset.
type ExifInfo struct {
	DateTimeOriginal string   `json:"dateTimeOriginal"`
	Latitude         *float64 `json:"latitude"`
	Longitude        *float64 `json:"longitude"`
}

// AssetInfo is the remote asset record, as far as reconciliation needs it.
type AssetInfo struct {
	ID            string   `json:"id"`
	FileCreatedAt string   `json:"fileCreatedAt"`
	ExifInfo      ExifInfo `json:"exifInfo"`
}

func (c *Client) GetAsset(ctx context.Context, assetID string) (*AssetInfo, error) {
	var info AssetInfo
	if err := c.doJSON(ctx, http.MethodGet, "/api/assets/"+assetID, nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// AssetUpdate corrects recorded metadata for a set of assets. Only set
// fields are sent.
type AssetUpdate struct {
	IDs              []string `json:"ids"`
	DateTimeOriginal string   `json:"dateTimeOriginal,omitempty"`
	Latitude         *float64 `json:"latitude,omitempty"`
	Longitude        *float64 `json:"longitude,omitempty"`
}

func (c *Client) UpdateAssets(ctx context.Context, upd AssetUpdate) error {
	return c.doJSON(ctx, http.MethodPut, "/api/assets", upd, nil)
}

type albumResponse struct {
	ID        string `json:"id"`
	AlbumName string `json:"albumName"`
}

type createAlbumRequest struct {
	AlbumName string `json:"albumName"`
}

type bulkIDs struct {
	IDs []string `json:"ids"`
}

func (c *Client) GetAllAlbums(ctx context.Context) (map[string]string, error) {
	var albums []albumResponse
	if err := c.doJSON(ctx, http.MethodGet, "/api/albums", nil, &albums); err != nil {
		return nil, err
	}
	m := make(map[string]string, len(albums))
	for _, a := range albums {
		m[a.AlbumName] = a.ID
	}
	return m, nil
}

func (c *Client) CreateAlbum(ctx context.Context, name string) (string, error) {
	var out albumResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/albums", createAlbumRequest{AlbumName: name}, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (c *Client) AddToAlbum(ctx context.Context, albumID string, assetIDs []string) error {
	if len(assetIDs) == 0 {
		return nil
	}
	return c.doJSON(ctx, http.MethodPut, "/api/albums/"+albumID+"/assets", bulkIDs{IDs: assetIDs}, nil)
}

func (c *Client) doJSON(ctx context.Context, method, urlPath string, reqBody, out any) error {
	ctx, cancel := context.WithTimeout(ctx, metaTimeout)
	defer cancel()

	var body any
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = b
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+urlPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("x-api-key", c.apiKey)
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.rc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: urlPath, Status: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}

	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			return fmt.Errorf("decode response: %w (body=%s)", err, strings.TrimSpace(string(b)))
		}
	}
	return nil
}
