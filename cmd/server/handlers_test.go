package main

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/himanishpuri/landmark/internal/service"
	"github.com/himanishpuri/landmark/pkg/logger"
)

func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	dir := t.TempDir()
	svc, err := service.NewFingerprintService(
		service.WithDBPath(filepath.Join(dir, "server.sqlite3")),
		service.WithTempDir(dir),
		service.WithLogger(logger.New(logger.Config{Level: logger.ERROR, Output: io.Discard})),
	)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	s := NewServer(svc, &ServerConfig{TempDir: dir, DBPath: "server.sqlite3", AllowedOrigins: []string{"*"}})
	ts := httptest.NewServer(s.setupRoutes())
	t.Cleanup(func() {
		ts.Close()
		svc.Close()
	})
	return ts
}

// testWAV returns one second of a two tone 16 bit mono WAV at 11025 Hz.
func testWAV(t *testing.T) []byte {
	t.Helper()

	const rate = 11025
	data := make([]int, rate)
	for i := range data {
		x := float64(i) / rate
		data[i] = int(8000*math.Sin(2*math.Pi*600*x) + 6000*math.Sin(2*math.Pi*1500*x) + float64(i*7919%401-200))
	}

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	enc := wav.NewEncoder(f, rate, 16, 1, 1)
	if err := enc.Write(&goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	f.Close()

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func upload(t *testing.T, url, filename string, audio []byte, fields map[string]string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		mw.WriteField(k, v)
	}
	if audio != nil {
		fw, err := mw.CreateFormFile("audio", filename)
		if err != nil {
			t.Fatal(err)
		}
		fw.Write(audio)
	}
	mw.Close()

	resp, err := http.Post(url, mw.FormDataContentType(), &body)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	return v
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("CORS header missing")
	}
}

func TestFingerprintUpload(t *testing.T) {
	ts := setupTestServer(t)

	resp := upload(t, ts.URL+"/api/fingerprint", "tone.wav", testWAV(t), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	fp := decode[FingerprintResponse](t, resp)

	if fp.Filename != "tone.wav" || fp.SampleRate != 11025 {
		t.Errorf("unexpected file info: %s at %d Hz", fp.Filename, fp.SampleRate)
	}
	// (11025-512)/256+1
	if fp.Summary.TotalFrames != 42 {
		t.Errorf("TotalFrames = %d, want 42", fp.Summary.TotalFrames)
	}
	n := 0
	for _, b := range fp.Batches {
		for _, h := range b.Hashes {
			if h.Hash != uint32(h.AnchorBin)<<16|uint32(h.TargetBin)<<8|uint32(h.Distance) {
				t.Fatalf("fields do not match hash %#x", h.Hash)
			}
			n++
		}
	}
	if n == 0 || n != fp.Summary.Hashes {
		t.Errorf("got %d hashes, summary says %d", n, fp.Summary.Hashes)
	}
}

func TestFingerprintUploadErrors(t *testing.T) {
	ts := setupTestServer(t)

	if resp := upload(t, ts.URL+"/api/fingerprint", "", nil, nil); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing file: status = %d", resp.StatusCode)
	}
	if resp := upload(t, ts.URL+"/api/fingerprint", "junk.wav", []byte("not a wav file"), nil); resp.StatusCode != http.StatusUnprocessableEntity {
		t.Errorf("invalid wav: status = %d", resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/api/fingerprint")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET: status = %d", resp.StatusCode)
	}
}

func TestTrackLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	resp := upload(t, ts.URL+"/api/tracks", "tone.wav", testWAV(t), map[string]string{"title": "Tone"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("add: status = %d", resp.StatusCode)
	}
	track := decode[TrackDTO](t, resp)
	if track.Title != "Tone" || track.HashCount == 0 {
		t.Fatalf("unexpected track %+v", track)
	}

	resp, err := http.Get(ts.URL + "/api/tracks")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if list := decode[ListTracksResponse](t, resp); list.Count != 1 {
		t.Errorf("list count = %d", list.Count)
	}

	resp, err = http.Get(ts.URL + "/api/tracks/" + track.ID + "/hashes")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	hashes := decode[TrackHashesResponse](t, resp)
	if hashes.Count != track.HashCount {
		t.Fatalf("hash count = %d, want %d", hashes.Count, track.HashCount)
	}

	body, _ := json.Marshal(LookupRequest{Hashes: []uint32{hashes.Hashes[0].Hash}})
	resp, err = http.Post(ts.URL+"/api/hashes/lookup", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	lookup := decode[LookupResponse](t, resp)
	occ := lookup.Occurrences[hashes.Hashes[0].Hash]
	if lookup.Found != 1 || len(occ) == 0 || occ[0].TrackID != track.ID {
		t.Errorf("unexpected lookup %+v", lookup)
	}

	req, _ := http.NewRequest(http.MethodDelete, ts.URL+"/api/tracks/"+track.ID, nil)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("delete: status = %d", resp.StatusCode)
	}

	resp, err = http.Get(ts.URL + "/api/tracks/" + track.ID)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("get after delete: status = %d", resp.StatusCode)
	}
}

func TestLookupValidation(t *testing.T) {
	ts := setupTestServer(t)

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "{"},
		{"empty", `{"hashes":[]}`},
		{"over 24 bits", `{"hashes":[16777216]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/hashes/lookup", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestSpectrogramUpload(t *testing.T) {
	ts := setupTestServer(t)

	resp := upload(t, ts.URL+"/api/spectrogram?residual=true", "tone.wav", testWAV(t), nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q", ct)
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.HasPrefix(b, []byte("\x89PNG")) {
		t.Error("response is not a PNG")
	}
}

func TestGetClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	if got := getClientIP(r); got != "10.0.0.1" {
		t.Errorf("RemoteAddr: got %q", got)
	}
	r.Header.Set("X-Forwarded-For", "1.2.3.4, 10.0.0.1")
	if got := getClientIP(r); got != "1.2.3.4" {
		t.Errorf("X-Forwarded-For: got %q", got)
	}
}
