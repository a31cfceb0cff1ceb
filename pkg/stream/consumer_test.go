package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/thecloudstation/cloudstation-deployer/pkg/deployment"
)

// chunkReader returns the input in fixed-size reads so events straddle
// read boundaries
type chunkReader struct {
	data []byte
	size int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// errReader fails after the data is exhausted
type errReader struct {
	r   io.Reader
	err error
}

func (r *errReader) Read(p []byte) (int, error) {
	n, err := r.r.Read(p)
	if err == io.EOF {
		return n, r.err
	}
	return n, err
}

func TestConsume_SuccessScenario(t *testing.T) {
	input := "data: {\"type\":\"progress\",\"phase\":\"building\",\"progress\":40}\n\n" +
		"data: {\"type\":\"progress\",\"phase\":\"deploying\",\"progress\":70}\n\n" +
		"data: {\"type\":\"complete\",\"result\":{\"urls\":{\"frontend\":\"https://x\"},\"duration\":42}}\n\n"

	session := deployment.NewSession(nil)
	err := NewConsumer(nil).Consume(context.Background(), strings.NewReader(input), session)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	snap := session.Snapshot()
	if snap.Phase != deployment.PhaseComplete {
		t.Errorf("Expected phase complete, got %s", snap.Phase)
	}
	if snap.Result == nil {
		t.Fatal("Expected result")
	}
	if snap.Result.URLs["frontend"] != "https://x" {
		t.Errorf("Expected frontend https://x, got %s", snap.Result.URLs["frontend"])
	}
	if snap.Result.DurationSeconds != 42 {
		t.Errorf("Expected duration 42, got %v", snap.Result.DurationSeconds)
	}
}

func TestConsume_MalformedLineThenError(t *testing.T) {
	input := "data: {not valid json\n\n" +
		"data: {\"type\":\"error\",\"error\":\"build failed\"}\n\n"

	session := deployment.NewSession(nil)
	err := NewConsumer(nil).Consume(context.Background(), strings.NewReader(input), session)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	snap := session.Snapshot()
	if snap.Phase != deployment.PhaseFailed {
		t.Errorf("Expected phase failed, got %s", snap.Phase)
	}
	if snap.Err == nil || snap.Err.Error() != "build failed" {
		t.Errorf("Expected error 'build failed', got %v", snap.Err)
	}
	var backendErr *deployment.BackendError
	if !errors.As(snap.Err, &backendErr) {
		t.Errorf("Expected BackendError, got %T", snap.Err)
	}
}

func TestConsume_MissingProgressKeepsPercent(t *testing.T) {
	input := "data: {\"type\":\"progress\",\"phase\":\"building\",\"progress\":60}\n\n" +
		"data: {\"type\":\"progress\",\"message\":\"still building\"}\n\n"

	session := deployment.NewSession(nil)
	err := NewConsumer(nil).Consume(context.Background(), strings.NewReader(input), session)
	if !errors.Is(err, ErrStreamEnded) {
		t.Fatalf("Expected ErrStreamEnded, got %v", err)
	}

	snap := session.Snapshot()
	if snap.Progress != 60 {
		t.Errorf("Expected progress 60, got %d", snap.Progress)
	}
	if snap.Message != "still building" {
		t.Errorf("Expected message 'still building', got %q", snap.Message)
	}
	for _, a := range snap.Anomalies {
		if a.Kind == deployment.AnomalyProgressRegression {
			t.Errorf("Unexpected progress regression: %s", a.Detail)
		}
	}
}

func TestConsume_SplitAcrossReads(t *testing.T) {
	input := "event: progress\n" +
		"data: {\"type\":\"progress\",\"phase\":\"pushing_code\",\"progress\":20,\"message\":\"Pushing\"}\n\n" +
		": keep-alive\n\n" +
		"data: {\"type\":\"complete\",\"result\":{\"urls\":{\"admin\":\"https://admin.x\"},\"duration\":7.5}}\n\n"

	for _, size := range []int{1, 3, 7, 16} {
		t.Run(fmt.Sprintf("chunk size %d", size), func(t *testing.T) {
			var progress []int
			session := deployment.NewSession(nil, deployment.WithOnChange(func(s deployment.Snapshot) {
				progress = append(progress, s.Progress)
			}))

			err := NewConsumer(nil).Consume(context.Background(), &chunkReader{data: []byte(input), size: size}, session)
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}

			snap := session.Snapshot()
			if snap.Phase != deployment.PhaseComplete {
				t.Fatalf("Expected phase complete, got %s", snap.Phase)
			}
			if snap.Result.URLs["admin"] != "https://admin.x" {
				t.Errorf("Expected admin URL, got %v", snap.Result.URLs)
			}
			if len(progress) != 2 || progress[0] != 20 || progress[1] != 100 {
				t.Errorf("Expected progress [20 100], got %v", progress)
			}
		})
	}
}

func TestConsume_StreamEndsWithoutTerminal(t *testing.T) {
	t.Run("clean EOF", func(t *testing.T) {
		session := deployment.NewSession(nil)
		input := "data: {\"type\":\"progress\",\"phase\":\"building\",\"progress\":40}\n\n"

		err := NewConsumer(nil).Consume(context.Background(), strings.NewReader(input), session)
		if !errors.Is(err, ErrStreamEnded) {
			t.Fatalf("Expected ErrStreamEnded, got %v", err)
		}

		snap := session.Snapshot()
		if snap.Phase != deployment.PhaseFailed {
			t.Errorf("Expected phase failed, got %s", snap.Phase)
		}
		if !errors.Is(snap.Err, ErrStreamEnded) {
			t.Errorf("Expected session error ErrStreamEnded, got %v", snap.Err)
		}
		if snap.Result != nil {
			t.Error("Result must not be fabricated")
		}
	})

	t.Run("empty stream", func(t *testing.T) {
		session := deployment.NewSession(nil)
		err := NewConsumer(nil).Consume(context.Background(), strings.NewReader(""), session)
		if !errors.Is(err, ErrStreamEnded) {
			t.Fatalf("Expected ErrStreamEnded, got %v", err)
		}
		if session.Snapshot().Phase == deployment.PhaseInitializing {
			t.Error("Session must not silently remain initializing")
		}
	})

	t.Run("read error", func(t *testing.T) {
		session := deployment.NewSession(nil)
		connErr := errors.New("connection reset by peer")
		r := &errReader{r: strings.NewReader("data: {\"type\":\"progress\",\"phase\":\"building\",\"progress\":10}\n"), err: connErr}

		err := NewConsumer(nil).Consume(context.Background(), r, session)
		if !errors.Is(err, ErrStreamEnded) {
			t.Fatalf("Expected ErrStreamEnded, got %v", err)
		}
		if !errors.Is(err, connErr) {
			t.Errorf("Expected read error to be wrapped, got %v", err)
		}
		if !session.Terminal() {
			t.Error("Expected session to be terminal")
		}
	})

	t.Run("unterminated final line is still decoded", func(t *testing.T) {
		session := deployment.NewSession(nil)
		input := `data: {"type":"complete","result":{"urls":{},"duration":1}}`

		err := NewConsumer(nil).Consume(context.Background(), strings.NewReader(input), session)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if session.Snapshot().Phase != deployment.PhaseComplete {
			t.Errorf("Expected phase complete, got %s", session.Snapshot().Phase)
		}
	})
}

func TestConsume_StopsAfterTerminal(t *testing.T) {
	// The padding outgrows the reader's buffer so unread input remains.
	input := "data: {\"type\":\"error\",\"error\":\"quota exceeded\"}\n\n" +
		strings.Repeat(": padding\n", 1000) +
		"data: {\"type\":\"progress\",\"phase\":\"deploying\",\"progress\":80}\n\n" +
		"data: {\"type\":\"complete\",\"result\":{\"urls\":{},\"duration\":1}}\n\n"

	r := strings.NewReader(input)
	session := deployment.NewSession(nil)
	if err := NewConsumer(nil).Consume(context.Background(), r, session); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	snap := session.Snapshot()
	if snap.Phase != deployment.PhaseFailed {
		t.Errorf("Expected phase failed, got %s", snap.Phase)
	}
	if snap.Progress != 0 {
		t.Errorf("Post-terminal progress must not be applied, got %d", snap.Progress)
	}
	if r.Len() == 0 {
		t.Error("Expected consumer to stop reading after the terminal envelope")
	}
}

func TestConsume_ProtocolWarnings(t *testing.T) {
	input := "data: {\"type\":\"heartbeat\",\"ts\":1}\n\n" +
		"data: {\"type\":\"complete\"}\n\n" +
		"data: {\"type\":\"complete\",\"result\":{\"urls\":{\"backend\":\"https://api.x\"},\"duration\":3}}\n\n"

	var warnings []*ProtocolWarning
	consumer := NewConsumer(nil, WithWarningHandler(func(w *ProtocolWarning) {
		warnings = append(warnings, w)
	}))

	session := deployment.NewSession(nil)
	if err := consumer.Consume(context.Background(), strings.NewReader(input), session); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(warnings) != 2 {
		t.Fatalf("Expected 2 warnings, got %d", len(warnings))
	}
	if warnings[0].Kind != WarningUnknownType {
		t.Errorf("Expected first warning unknown_type, got %s", warnings[0].Kind)
	}
	if warnings[1].Kind != WarningMalformedTerminal {
		t.Errorf("Expected second warning malformed_terminal, got %s", warnings[1].Kind)
	}
	if session.Snapshot().Phase != deployment.PhaseComplete {
		t.Error("A later valid terminal envelope should still complete the session")
	}
}

func TestConsume_ContextCancelled(t *testing.T) {
	pr, pw := io.Pipe()
	ctx, cancel := context.WithCancel(context.Background())

	session := deployment.NewSession(nil)
	done := make(chan error, 1)
	go func() {
		done <- NewConsumer(nil).Consume(ctx, pr, session)
	}()

	fmt.Fprint(pw, "data: {\"type\":\"progress\",\"phase\":\"building\",\"progress\":40}\n\n")
	cancel()
	pw.CloseWithError(context.Canceled)

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if session.Terminal() {
		t.Error("Cancelled consume should leave the session for the caller to resolve")
	}
}

func TestConsume_OverHTTP(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)

		events := []Envelope{
			{Type: TypeProgress, Phase: "creating_project", Progress: Percent(10), Message: "Creating project"},
			{Type: TypeProgress, Phase: "building", Progress: Percent(50)},
			{Type: TypeComplete, Result: &ResultPayload{URLs: map[string]string{"frontend": "https://site"}, Duration: 90, InfraProjectID: "infra-9"}},
		}
		for _, ev := range events {
			data, _ := Encode(ev)
			w.Write(data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	defer server.Close()

	resp, err := http.Get(server.URL)
	if err != nil {
		t.Fatalf("Request failed: %v", err)
	}
	defer resp.Body.Close()

	session := deployment.NewSession(nil)
	if err := NewConsumer(nil).Consume(context.Background(), resp.Body, session); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	snap := session.Snapshot()
	if snap.Phase != deployment.PhaseComplete {
		t.Errorf("Expected phase complete, got %s", snap.Phase)
	}
	if snap.Message != "Creating project" {
		t.Errorf("Expected last non-empty message, got %q", snap.Message)
	}
	if snap.InfraProjectID() != "infra-9" {
		t.Errorf("Expected infra project infra-9, got %q", snap.InfraProjectID())
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short", "data: {}", 120, "data: {}"},
		{"ascii", "abcdef", 3, "abc..."},
		{"inside multibyte rune", "abécd", 3, "ab..."},
		{"on rune boundary", "abécd", 4, "abé..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.in, tt.n)
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
			if !utf8.ValidString(got) {
				t.Errorf("Expected valid UTF-8, got %q", got)
			}
		})
	}
}
