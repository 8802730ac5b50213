package handlers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"shameless/internal/feed/models"
	"shameless/internal/feed/repository"
	"shameless/internal/feed/service"

	"github.com/gofiber/fiber/v3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

type testEnv struct {
	app  *fiber.App
	repo *repository.Repository
	hub  *service.ChangeHub
	feed *FeedHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := repository.OpenSQLite(filepath.Join(t.TempDir(), "feed.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	repo := repository.New(db)
	if err := repo.Init(context.Background()); err != nil {
		t.Fatalf("Init: %v", err)
	}

	sessions := service.NewSessionManager()
	hub := service.NewChangeHub()
	feed := NewFeedHandler(repo, sessions, hub, nil)

	app := fiber.New()
	Mount(app, NewAuthHandler(repo, sessions), feed)
	return &testEnv{app: app, repo: repo, hub: hub, feed: feed}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.app.Test(req, fiber.TestConfig{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out
}

// serve runs the app on a real listener. Streamed responses never complete
// under app.Test.
func (e *testEnv) serve(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go e.app.Listener(ln, fiber.ListenConfig{DisableStartupMessage: true})
	t.Cleanup(func() { e.app.ShutdownWithTimeout(5 * time.Second) })
	return "http://" + ln.Addr().String()
}

func openStream(t *testing.T, url, token string) (*http.Response, *bufio.Reader) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		t.Fatalf("stream status %d", resp.StatusCode)
	}
	if !strings.HasPrefix(resp.Header.Get("Content-Type"), streamContentType) {
		resp.Body.Close()
		t.Fatalf("stream content type %q", resp.Header.Get("Content-Type"))
	}
	return resp, bufio.NewReader(resp.Body)
}

// nextEvent skips comment lines and returns the next event name and data.
func nextEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event string
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: ") && event != "":
			return event, strings.TrimPrefix(line, "data: ")
		}
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (e *testEnv) register(t *testing.T, email string) (string, string) {
	t.Helper()
	resp, body := e.do(t, http.MethodPost, "/register", "", fiber.Map{"email": email, "password": "secret1"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("register status %d: %s", resp.StatusCode, body)
	}
	var out struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		t.Fatalf("decode register: %v", err)
	}
	return out.Token, out.User.ID
}

func TestRegisterLoginLogout(t *testing.T) {
	e := newTestEnv(t)
	token, userID := e.register(t, "ann@example.com")
	if token == "" || userID == "" {
		t.Fatal("expected token and user id")
	}

	resp, body := e.do(t, http.MethodPost, "/register", "", fiber.Map{"email": "ann@example.com", "password": "secret1"})
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("duplicate register status %d: %s", resp.StatusCode, body)
	}

	resp, _ = e.do(t, http.MethodPost, "/register", "", fiber.Map{"email": "bob@example.com", "password": "123"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("short password status %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/login", "", fiber.Map{"email": "ann@example.com", "password": "wrong!"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad login status %d", resp.StatusCode)
	}

	resp, body = e.do(t, http.MethodPost, "/login", "", fiber.Map{"email": "ann@example.com", "password": "secret1"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status %d: %s", resp.StatusCode, body)
	}
	if strings.Contains(string(body), "secret1") || strings.Contains(string(body), "password") {
		t.Fatalf("login leaked credentials: %s", body)
	}

	resp, _ = e.do(t, http.MethodPost, "/logout", token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("logout status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, "/users/"+userID, token, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("revoked token status %d", resp.StatusCode)
	}
}

func TestUserAccessControl(t *testing.T) {
	e := newTestEnv(t)
	annToken, annID := e.register(t, "ann@example.com")
	_, bobID := e.register(t, "bob@example.com")

	resp, _ := e.do(t, http.MethodGet, "/users/"+annID, "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodGet, "/users/"+bobID, annToken, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign user status %d", resp.StatusCode)
	}

	resp, body := e.do(t, http.MethodPut, "/users/"+annID+"/onboarding", annToken, fiber.Map{"onboarded": true})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("onboarding status %d: %s", resp.StatusCode, body)
	}
	var u models.User
	if err := json.Unmarshal(body, &u); err != nil {
		t.Fatalf("decode user: %v", err)
	}
	if !u.Onboarded {
		t.Fatal("expected onboarded user")
	}

	resp, _ = e.do(t, http.MethodPut, "/users/"+annID+"/onboarding", annToken, fiber.Map{})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing onboarded status %d", resp.StatusCode)
	}
}

func TestFeedFlow(t *testing.T) {
	e := newTestEnv(t)
	token, userID := e.register(t, "ann@example.com")
	base := "/users/" + userID

	changes, cancel := e.hub.Subscribe(userID)
	defer cancel()

	resp, body := e.do(t, http.MethodGet, base+"/positions/next", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("next status %d: %s", resp.StatusCode, body)
	}
	var pos models.Position
	if err := json.Unmarshal(body, &pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}

	resp, _ = e.do(t, http.MethodPost, base+"/interactions", token, fiber.Map{"position_id": pos.ID, "interaction_type": "superlike"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad type status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, base+"/interactions", token, fiber.Map{"position_id": "missing", "interaction_type": "like"})
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown position status %d", resp.StatusCode)
	}

	resp, body = e.do(t, http.MethodPost, base+"/interactions", token, fiber.Map{"position_id": pos.ID, "interaction_type": "like"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("interaction status %d: %s", resp.StatusCode, body)
	}

	select {
	case c := <-changes:
		if c.Event != service.ChangeInsert || c.PositionID != pos.ID {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a change notification")
	}

	resp, body = e.do(t, http.MethodGet, base+"/liked", token, nil)
	var liked []models.Position
	if err := json.Unmarshal(body, &liked); err != nil {
		t.Fatalf("decode liked: %v", err)
	}
	if resp.StatusCode != http.StatusOK || len(liked) != 1 || liked[0].ID != pos.ID {
		t.Fatalf("liked = %d %s", resp.StatusCode, body)
	}

	resp, body = e.do(t, http.MethodGet, base+"/liked/pdf", token, nil)
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != pdfContentType {
		t.Fatalf("pdf status %d type %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if !bytes.HasPrefix(body, []byte("%PDF-")) {
		t.Fatal("expected a pdf body")
	}

	resp, _ = e.do(t, http.MethodDelete, base+"/liked/"+pos.ID, token, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove status %d", resp.StatusCode)
	}
	select {
	case c := <-changes:
		if c.Event != service.ChangeDelete || c.PositionID != pos.ID {
			t.Fatalf("unexpected change %+v", c)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a delete notification")
	}

	resp, _ = e.do(t, http.MethodDelete, base+"/liked/"+pos.ID, token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("second remove status %d", resp.StatusCode)
	}
}

func TestNextPositionExhausted(t *testing.T) {
	e := newTestEnv(t)
	token, userID := e.register(t, "ann@example.com")
	base := "/users/" + userID

	for {
		resp, body := e.do(t, http.MethodGet, base+"/positions/next", token, nil)
		if resp.StatusCode == http.StatusNotFound {
			if !strings.Contains(string(body), "no positions available") {
				t.Fatalf("unexpected body %s", body)
			}
			return
		}
		var pos models.Position
		if err := json.Unmarshal(body, &pos); err != nil {
			t.Fatalf("decode position: %v", err)
		}
		resp, _ = e.do(t, http.MethodPost, base+"/interactions", token, fiber.Map{"position_id": pos.ID, "interaction_type": "dislike"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("interaction status %d", resp.StatusCode)
		}
	}
}

func TestStreamRequiresOwner(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "ann@example.com")
	_, bobID := e.register(t, "bob@example.com")

	resp, _ := e.do(t, http.MethodGet, "/users/"+bobID+"/liked/stream", token, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("stream status %d", resp.StatusCode)
	}
	if e.hub.Subscribers(bobID) != 0 {
		t.Fatal("rejected stream must not subscribe")
	}
}

func TestStreamDeliversChanges(t *testing.T) {
	e := newTestEnv(t)
	e.feed.StreamKeepAlive = 50 * time.Millisecond
	token, userID := e.register(t, "ann@example.com")
	base := e.serve(t)

	resp, r := openStream(t, base+"/users/"+userID+"/liked/stream", token)
	if line, err := r.ReadString('\n'); err != nil || line != ": connected\n" {
		t.Fatalf("first line %q (%v)", line, err)
	}

	if n := e.hub.Publish(service.Change{Event: service.ChangeInsert, UserID: userID, PositionID: "p1", InteractionType: "like"}); n != 1 {
		t.Fatalf("published to %d subscribers, want 1", n)
	}
	event, data := nextEvent(t, r)
	if event != "change" {
		t.Fatalf("event %q, want change", event)
	}
	var c service.Change
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if c.Event != service.ChangeInsert || c.PositionID != "p1" || c.UserID != userID {
		t.Fatalf("unexpected change %+v", c)
	}

	// A departed client is dropped on the next keepalive write.
	resp.Body.Close()
	waitFor(t, "the stream to unsubscribe", func() bool { return e.hub.Subscribers(userID) == 0 })
}

func TestStreamEndsOnShutdown(t *testing.T) {
	e := newTestEnv(t)
	token, userID := e.register(t, "ann@example.com")
	base := e.serve(t)

	resp, r := openStream(t, base+"/users/"+userID+"/liked/stream", token)
	defer resp.Body.Close()
	if _, err := r.ReadString('\n'); err != nil {
		t.Fatalf("read: %v", err)
	}

	start := time.Now()
	if err := e.app.ShutdownWithTimeout(10 * time.Second); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("shutdown waited %v on an idle stream", elapsed)
	}
	waitFor(t, "the stream to unsubscribe", func() bool { return e.hub.Subscribers(userID) == 0 })
}

func TestPositions(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "ann@example.com")

	resp, _ := e.do(t, http.MethodPost, "/positions", "", fiber.Map{"name": "QA"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous create status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/positions", token, fiber.Map{"name": "  "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank name status %d", resp.StatusCode)
	}

	for _, bad := range []string{"file:///etc/passwd", "gopher://example.com/", "/local.png"} {
		resp, _ = e.do(t, http.MethodPost, "/positions", token, fiber.Map{"name": "QA", "image_url": bad})
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("image_url %q status %d, want 400", bad, resp.StatusCode)
		}
	}

	resp, body := e.do(t, http.MethodPost, "/positions", token, fiber.Map{"name": "QA Engineer", "image_url": "https://example.com/qa.png"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create status %d: %s", resp.StatusCode, body)
	}
	var pos models.Position
	if err := json.Unmarshal(body, &pos); err != nil {
		t.Fatalf("decode position: %v", err)
	}

	resp, body = e.do(t, http.MethodGet, "/positions/"+pos.ID, "", nil)
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), "QA Engineer") {
		t.Fatalf("get status %d: %s", resp.StatusCode, body)
	}
	resp, _ = e.do(t, http.MethodGet, "/positions/missing", "", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing status %d", resp.StatusCode)
	}
}

func TestCard(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "ann@example.com")

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.Set(x, y, color.RGBA{B: 255, A: 255})
		}
	}
	var pngData bytes.Buffer
	if err := png.Encode(&pngData, img); err != nil {
		t.Fatalf("encode: %v", err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(pngData.Bytes())
	}))
	defer srv.Close()
	e.feed.images = service.NewImageStore(t.TempDir(), service.AllowPrivateNetworks())

	pos, err := e.repo.CreatePosition(context.Background(), "Card", srv.URL+"/card.png")
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	resp, body := e.do(t, http.MethodPost, "/positions/"+pos.ID+"/card", token, fiber.Map{
		"d":              "M0 40 L80 40",
		"viewport_width": 100,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("card status %d: %s", resp.StatusCode, body)
	}
	frame, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if frame.Bounds().Dx() != 80 || frame.Bounds().Dy() != 80 {
		t.Fatalf("card size %v, want 80x80", frame.Bounds())
	}
	if _, _, b, _ := frame.At(40, 40).RGBA(); b < 0x8000 {
		t.Fatal("expected the image to show along the stroke")
	}
	if r, _, _, _ := frame.At(40, 5).RGBA(); r < 0x8000 {
		t.Fatal("expected the overlay away from the stroke")
	}

	resp, body = e.do(t, http.MethodPost, "/positions/"+pos.ID+"/card?format=svg", token, fiber.Map{"d": "M0 40 L80 40"})
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(body), `<mask id="scratch">`) {
		t.Fatalf("svg status %d: %s", resp.StatusCode, body)
	}

	resp, _ = e.do(t, http.MethodPost, "/positions/"+pos.ID+"/card", token, fiber.Map{"d": "M0 nope"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad path status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/positions/"+pos.ID+"/card", token, fiber.Map{"viewport_width": -5})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad viewport status %d", resp.StatusCode)
	}
	resp, _ = e.do(t, http.MethodPost, "/positions/missing/card", token, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing position status %d", resp.StatusCode)
	}

	resp, _ = e.do(t, http.MethodPost, "/positions/"+pos.ID+"/card", "", fiber.Map{"d": "M0 40 L80 40"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous card status %d, want 401", resp.StatusCode)
	}
}

func TestCardDoesNotFetchPrivateImages(t *testing.T) {
	e := newTestEnv(t)
	token, _ := e.register(t, "ann@example.com")

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	e.feed.images = service.NewImageStore(t.TempDir())

	pos, err := e.repo.CreatePosition(context.Background(), "Internal", srv.URL+"/admin")
	if err != nil {
		t.Fatalf("CreatePosition: %v", err)
	}

	resp, body := e.do(t, http.MethodPost, "/positions/"+pos.ID+"/card", token, fiber.Map{"d": "M0 40 L80 40", "viewport_width": 100})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("card status %d: %s", resp.StatusCode, body)
	}
	if hits.Load() != 0 {
		t.Fatalf("card rendering reached a loopback host %d times", hits.Load())
	}
	frame, err := png.Decode(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("decode card: %v", err)
	}
	if r, _, _, _ := frame.At(40, 5).RGBA(); r < 0x8000 {
		t.Fatal("expected the overlay to render without a background")
	}
}
