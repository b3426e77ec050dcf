package backend

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestREST(t *testing.T, h http.Handler) *RESTClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewRESTClient(WithBaseURL(srv.URL), WithAPIKey("test-key"), WithTimeout(5*time.Second))
}

func collect(t *testing.T, ch <-chan StreamEvent) []StreamEvent {
	t.Helper()
	var out []StreamEvent
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out waiting for stream to close")
		}
	}
}

// ---------------------------------------------------------------------------
// SSE
// ---------------------------------------------------------------------------

func TestReadEvents_DecodesInteractionFrames(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		fmt.Fprint(pw, ": keep-alive\n\n")
		fmt.Fprint(pw, "event: interaction.start\n")
		fmt.Fprint(pw, `data: {"event_type":"interaction.start","event_id":"e1","interaction":{"id":"int-9","status":"in_progress"}}`+"\n\n")
		fmt.Fprint(pw, `data: {"event_type":"content.delta","delta":{"type":"thought_summary","content":{"text":"Planning"}}}`+"\n\n")
		fmt.Fprint(pw, `data: {"event_type":"content.delta","delta":{"type":"text","text":"Hello"}}`+"\n\n")
		fmt.Fprint(pw, "data: {not json}\n\n")
		fmt.Fprint(pw, `data: {"event_type":"error","error":{"message":"boom"}}`+"\n\n")
		fmt.Fprint(pw, `data: {"event_type":"interaction.complete"}`+"\n\n")
		pw.Close()
	}()

	events := collect(t, ReadEvents(context.Background(), pr))
	require.Len(t, events, 6)

	assert.Equal(t, EventStart, events[0].Type)
	assert.Equal(t, "int-9", events[0].Handle)
	assert.Equal(t, "e1", events[0].EventID)

	require.NotNil(t, events[1].Delta)
	assert.Equal(t, DeltaThought, events[1].Delta.Type)
	assert.Equal(t, "Planning", events[1].Delta.Text)

	assert.Equal(t, "Hello", events[2].Delta.Text)
	assert.Error(t, events[3].Err)
	assert.Equal(t, "boom", events[4].Message)
	assert.Equal(t, EventComplete, events[5].Type)
}

func TestReadEvents_FlushesTrailingEventWithoutBlankLine(t *testing.T) {
	body := io.NopCloser(strings.NewReader(`data: {"event_type":"interaction.complete"}`))
	events := collect(t, ReadEvents(context.Background(), body))
	require.Len(t, events, 1)
	assert.Equal(t, EventComplete, events[0].Type)
}

func TestReadEvents_ContextCancelClosesChannel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	ctx, cancel := context.WithCancel(context.Background())
	ch := ReadEvents(ctx, pr)
	go func() {
		fmt.Fprint(pw, `data: {"event_type":"content.delta","delta":{"type":"text","text":"a"}}`+"\n\n")
	}()
	<-ch
	cancel()
	pw.Close()
	collect(t, ch)
}

// ---------------------------------------------------------------------------
// Interactions
// ---------------------------------------------------------------------------

func TestRESTStream_PostsInteractionAndStreams(t *testing.T) {
	var got interactionRequest
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/interactions", r.URL.Path)
		assert.Equal(t, "sse", r.URL.Query().Get("alt"))
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, `data: {"event_type":"interaction.start","interaction":{"id":"int-1"}}`+"\n\n")
		fmt.Fprint(w, `data: {"event_type":"content.delta","delta":{"type":"text","text":"report"}}`+"\n\n")
		fmt.Fprint(w, `data: {"event_type":"interaction.complete"}`+"\n\n")
	}))

	ch, err := c.Stream(context.Background(), StreamRequest{Agent: "deep-research", Prompt: "courier scam"})
	require.NoError(t, err)
	events := collect(t, ch)
	require.Len(t, events, 3)
	assert.Equal(t, "int-1", events[0].Handle)
	assert.Equal(t, "report", events[1].Delta.Text)

	assert.Equal(t, "deep-research", got.Agent)
	assert.Equal(t, "courier scam", got.Input)
	assert.True(t, got.Background)
	assert.True(t, got.Stream)
}

func TestRESTStream_Non2xxIsStatusError(t *testing.T) {
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	_, err := c.Stream(context.Background(), StreamRequest{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.StatusCode)
	assert.True(t, IsRetryable(err))
}

func TestRESTStatus_Interaction(t *testing.T) {
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/interactions/int-1", r.URL.Path)
		fmt.Fprint(w, `{"id":"int-1","status":"completed","outputs":[{"text":"draft"},{"text":"final"}]}`)
	}))
	st, err := c.Status(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)
	assert.Equal(t, "final", st.Result)
}

func TestRESTStatus_InteractionRunning(t *testing.T) {
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"id":"int-1","status":"in_progress"}`)
	}))
	st, err := c.Status(context.Background(), "int-1")
	require.NoError(t, err)
	assert.Equal(t, JobRunning, st.State)
}

// ---------------------------------------------------------------------------
// Video operations
// ---------------------------------------------------------------------------

func TestRESTVideo_SubmitPollFetch(t *testing.T) {
	first := []byte("first-frame")
	last := []byte("last-frame")
	var inst veoInstance
	var srvURL string
	mux := http.NewServeMux()
	mux.HandleFunc("/models/veo-test:predictLongRunning", func(w http.ResponseWriter, r *http.Request) {
		var req veoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Instances, 1)
		inst = req.Instances[0]
		assert.EqualValues(t, VeoClipSeconds, req.Parameters["durationSeconds"])
		fmt.Fprint(w, `{"name":"models/veo-test/operations/op-1"}`)
	})
	mux.HandleFunc("/models/veo-test/operations/op-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name":"op-1","done":true,"response":{"generateVideoResponse":{"generatedSamples":[{"video":{"uri":"%s/files/clip.mp4"}}]}}}`, srvURL)
	})
	mux.HandleFunc("/files/clip.mp4", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-goog-api-key"))
		w.Write([]byte("mp4-bytes"))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	srvURL = srv.URL
	c := NewRESTClient(WithBaseURL(srv.URL), WithAPIKey("test-key"))

	ctx := context.Background()
	op, err := c.SubmitVideo(ctx, VideoRequest{
		Model:      "veo-test",
		Prompt:     "a courier calls",
		FirstFrame: first,
		LastFrame:  last,
		References: [][]byte{[]byte("ignored")},
	})
	require.NoError(t, err)
	assert.Equal(t, "models/veo-test/operations/op-1", op)

	require.NotNil(t, inst.Image)
	require.NotNil(t, inst.LastFrame)
	assert.Equal(t, base64.StdEncoding.EncodeToString(first), inst.Image.BytesBase64Encoded)
	assert.Empty(t, inst.ReferenceImages, "references are dropped when a first frame is set")

	st, err := c.Status(ctx, op)
	require.NoError(t, err)
	assert.Equal(t, JobCompleted, st.State)

	data, err := c.FetchVideo(ctx, st.Result)
	require.NoError(t, err)
	assert.Equal(t, "mp4-bytes", string(data))
}

func TestRESTVideo_ReferencesCappedWithoutFirstFrame(t *testing.T) {
	var inst veoInstance
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req veoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		inst = req.Instances[0]
		fmt.Fprint(w, `{"name":"operations/op-2"}`)
	}))
	refs := [][]byte{[]byte("a"), []byte("b"), []byte("c"), []byte("d")}
	_, err := c.SubmitVideo(context.Background(), VideoRequest{Model: "veo", Prompt: "p", References: refs})
	require.NoError(t, err)
	assert.Nil(t, inst.Image)
	assert.Len(t, inst.ReferenceImages, MaxVideoReferences)
	assert.Equal(t, "asset", inst.ReferenceImages[0].ReferenceType)
}

func TestRESTStatus_OperationError(t *testing.T) {
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"operations/op-3","done":true,"error":{"code":3,"message":"prompt rejected"}}`)
	}))
	st, err := c.Status(context.Background(), "operations/op-3")
	require.NoError(t, err)
	assert.Equal(t, JobFailed, st.State)
	assert.Equal(t, "prompt rejected", st.Error)
}

// ---------------------------------------------------------------------------
// Images
// ---------------------------------------------------------------------------

func TestRESTImage_ReturnsInlineData(t *testing.T) {
	png := []byte("\x89PNG fake")
	var req generateContentRequest
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models/image-model:generateContent", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":"here you go"},{"inlineData":{"mimeType":"image/png","data":"%s"}}]}}]}`,
			base64.StdEncoding.EncodeToString(png))
	}))
	img, err := c.GenerateImage(context.Background(), ImageRequest{
		Model:       "image-model",
		Prompt:      "2x2 grid of the victim",
		References:  [][]byte{[]byte("ref")},
		AspectRatio: "9:16",
	})
	require.NoError(t, err)
	assert.Equal(t, png, img)

	require.Len(t, req.Contents, 1)
	parts := req.Contents[0].Parts
	require.Len(t, parts, 2)
	assert.NotNil(t, parts[0].InlineData)
	assert.Equal(t, "2x2 grid of the victim", parts[1].Text)
}

func TestRESTImage_NoImageIsNil(t *testing.T) {
	c := newTestREST(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[{"text":"I cannot draw that"}]}}]}`)
	}))
	img, err := c.GenerateImage(context.Background(), ImageRequest{Model: "m", Prompt: "p"})
	require.NoError(t, err)
	assert.Nil(t, img)
}
