package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DigestRanker/internal/config"
	"DigestRanker/internal/logging"
)

type generatorFunc func(ctx context.Context, system, input string) (string, error)

func (f generatorFunc) Generate(ctx context.Context, system, input string) (string, error) {
	return f(ctx, system, input)
}

const feedXML = `<?xml version="1.0"?>
<rss version="2.0"><channel><title>forum</title><link>https://forum.example</link><description>d</description>
<item><title>카드 결제 장애</title><link>https://forum.example/1</link><description>결제 오류 발생</description></item>
<item><title>New LLM agent</title><link>https://forum.example/2</link><description>llm agent release</description></item>
<item><title>Lunch menu</title><link>https://forum.example/3</link><description>nothing relevant</description></item>
</channel></rss>`

type telegramRecorder struct {
	mu    sync.Mutex
	texts []string
}

func (r *telegramRecorder) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", req.URL.Path)
		require.NoError(t, req.ParseForm())
		r.mu.Lock()
		r.texts = append(r.texts, req.PostForm.Get("text"))
		r.mu.Unlock()
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

func (r *telegramRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.texts...)
}

func testConfig(t *testing.T, feedURL, telegramURL string) config.Config {
	t.Helper()
	raw := fmt.Sprintf(`
store:
  driver: memory
llm:
  retry:
    maxAttempts: 1
notifications:
  telegram:
    botToken: token
    chatId: "42"
    baseUrl: %s
metrics:
  addr: ""
topics:
  - name: fintech
    topK: 2
    buckets:
      - source: forum
        cap: 5
    feeds:
      - source: forum
        url: %s
`, telegramURL, feedURL)
	cfg, err := config.Parse([]byte(raw))
	require.NoError(t, err)
	return cfg
}

// titleScorer scores by title so the payment outage ranks first.
func titleScorer() generatorFunc {
	scores := map[string]int{"카드 결제 장애": 90, "New LLM agent": 70, "Lunch menu": 5}
	return func(_ context.Context, _, input string) (string, error) {
		for title, score := range scores {
			if strings.Contains(input, "[Title] "+title+"\n") {
				return fmt.Sprintf(`{"score": %d, "summary": "about %s", "topic": "news"}`, score, title), nil
			}
		}
		return "no idea", nil
	}
}

func TestApplicationCollectAndRun(t *testing.T) {
	t.Parallel()

	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML))
	}))
	defer feedServer.Close()

	recorder := &telegramRecorder{}
	tgServer := httptest.NewServer(recorder.handler(t))
	defer tgServer.Close()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t, feedServer.URL, tgServer.URL), logging.Discard(), Options{Generator: titleScorer()})
	require.NoError(t, err)
	defer a.Close()

	n, err := a.Collect(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	reports, err := a.Run(ctx, "fintech")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"https://forum.example/1", "https://forum.example/2"}, reports[0].Digest.URLs())

	texts := recorder.all()
	require.Len(t, texts, 1)
	assert.Contains(t, texts[0], "카드 결제 장애")
	assert.Contains(t, texts[0], "about New LLM agent")

	n, err = a.Collect(ctx, "fintech")
	require.NoError(t, err)
	assert.Zero(t, n)

	reports, err = a.Run(ctx, "")
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"https://forum.example/3"}, reports[0].Digest.URLs())
}

func TestApplicationDryRunDoesNotDeliver(t *testing.T) {
	t.Parallel()

	feedServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(feedXML))
	}))
	defer feedServer.Close()
	recorder := &telegramRecorder{}
	tgServer := httptest.NewServer(recorder.handler(t))
	defer tgServer.Close()

	ctx := context.Background()
	a, err := New(ctx, testConfig(t, feedServer.URL, tgServer.URL), logging.Discard(), Options{DryRun: true, Generator: titleScorer()})
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Collect(ctx, "fintech")
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		reports, err := a.Run(ctx, "fintech")
		require.NoError(t, err)
		assert.Len(t, reports[0].Digest.Entries, 2)
	}
	assert.Empty(t, recorder.all())
}

func TestApplicationRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte("store:\n  driver: mongo\n"))
	require.NoError(t, err)

	_, err = New(context.Background(), cfg, logging.Discard(), Options{Generator: titleScorer()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}

func TestMetricsMux(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte("store:\n  driver: memory\n"))
	require.NoError(t, err)
	a, err := New(context.Background(), cfg, logging.Discard(), Options{Generator: titleScorer()})
	require.NoError(t, err)
	defer a.Close()

	server := httptest.NewServer(a.metricsMux())
	defer server.Close()

	resp, err := http.Get(server.URL + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	resp, err = http.Get(server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
