package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := NewClient("test-token", srv.Client())
	c.base = srv.URL
	return c
}

func TestGetUpdatesDecodesEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottest-token/getUpdates", r.URL.Path)

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, float64(42), payload["offset"])

		fmt.Fprint(w, `{"ok":true,"result":[
			{"update_id":42,"message":{"message_id":1,"chat":{"id":10},"text":"hi",
				"from":{"id":2,"first_name":"Ann"}}}
		]}`)
	})

	updates, err := c.GetUpdates(t.Context(), 42)
	require.NoError(t, err)
	require.Len(t, updates, 1)
	assert.Equal(t, int64(42), updates[0].UpdateID)
	assert.Equal(t, "hi", updates[0].Message.Text)
	assert.Equal(t, int64(10), updates[0].Message.Chat.ID)
	assert.Equal(t, "Ann", updates[0].Message.From.FirstName)
}

func TestAPIErrorSurfacesDescription(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":false,"description":"Unauthorized"}`)
	})

	err := c.SendMessage(t.Context(), 10, "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Unauthorized")
}

func TestSendMessagePayload(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	})

	require.NoError(t, c.SendMessage(t.Context(), 10, "hello"))
	assert.Equal(t, float64(10), got["chat_id"])
	assert.Equal(t, "hello", got["text"])
}

func TestDownloadVoiceWritesFile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bottest-token/getFile":
			fmt.Fprint(w, `{"ok":true,"result":{"file_id":"abc","file_path":"voice/file_1.oga"}}`)
		case "/file/bottest-token/voice/file_1.oga":
			w.Write([]byte("ogg-bytes"))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	dest := filepath.Join(t.TempDir(), "in.oga")
	require.NoError(t, c.DownloadVoice(t.Context(), "abc", dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "ogg-bytes", string(data))
}

func TestDownloadVoiceEmptyFilePath(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"ok":true,"result":{"file_id":"abc"}}`)
	})

	err := c.DownloadVoice(t.Context(), "abc", filepath.Join(t.TempDir(), "in.oga"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty file_path")
}

func TestSendVoiceMultipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "10", r.FormValue("chat_id"))

		file, _, err := r.FormFile("voice")
		require.NoError(t, err)
		defer file.Close()

		fmt.Fprint(w, `{"ok":true,"result":{}}`)
	})

	path := filepath.Join(t.TempDir(), "reply.mp3")
	require.NoError(t, os.WriteFile(path, []byte("mp3-bytes"), 0o644))

	require.NoError(t, c.SendVoice(t.Context(), 10, path))
}

func TestFullName(t *testing.T) {
	assert.Equal(t, "Ann Lee", (&User{FirstName: "Ann", LastName: "Lee"}).FullName())
	assert.Equal(t, "Ann", (&User{FirstName: "Ann"}).FullName())
	assert.Equal(t, "someuser", (&User{Username: "someuser"}).FullName())
}
