package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/rushteam/bookrec/core"
	"github.com/rushteam/bookrec/metrics"
)

// HTTPSource 从后端 API 拉取目录与评分：
//
//	GET {BaseURL}/books
//	GET {BaseURL}/interactions?startDate=<RFC3339>
//
// 所有请求经过熔断器：后端持续失败时快速失败，避免训练任务长时间阻塞。
type HTTPSource struct {
	baseURL          string
	booksPath        string
	interactionsPath string
	client           *http.Client
	cb               *gobreaker.CircuitBreaker[[]byte]
	name             string
}

// HTTPOptions 是 HTTPSource 的参数
type HTTPOptions struct {
	BaseURL          string
	BooksPath        string        // 默认 /books
	InteractionsPath string        // 默认 /interactions
	Timeout          time.Duration // 单次请求超时，默认 30s
	Client           *http.Client  // 可选，测试时注入
}

// NewHTTPSource 创建带熔断器的 HTTP 数据源。
// 熔断器配置：半开状态最多 3 个探测请求，1 分钟统计窗口，打开 30 秒后尝试恢复，
// 连续失败 5 次或失败率 >= 60%（至少 10 个请求）时打开。
func NewHTTPSource(opts HTTPOptions) (*HTTPSource, error) {
	if opts.BaseURL == "" {
		return nil, core.InvalidInputError(core.ModuleSource, "http source: base_url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, core.InvalidInputError(core.ModuleSource, "http source: bad base_url: %v", err)
	}
	if opts.BooksPath == "" {
		opts.BooksPath = "/books"
	}
	if opts.InteractionsPath == "" {
		opts.InteractionsPath = "/interactions"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}

	name := "backend-api"
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests < 10 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, _, to gobreaker.State) {
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &HTTPSource{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		booksPath:        opts.BooksPath,
		interactionsPath: opts.InteractionsPath,
		client:           client,
		cb:               cb,
		name:             name,
	}, nil
}

func (s *HTTPSource) Name() string { return "http" }

func (s *HTTPSource) FetchCatalog(ctx context.Context) ([]core.Book, error) {
	body, err := s.get(ctx, s.booksPath, nil)
	if err != nil {
		return nil, err
	}
	records, err := decodeList[bookRecord](body, "books")
	if err != nil {
		return nil, err
	}
	return toBooks(records), nil
}

func (s *HTTPSource) FetchInteractions(ctx context.Context, since time.Time) ([]core.Interaction, error) {
	q := url.Values{}
	if !since.IsZero() {
		q.Set("startDate", since.UTC().Format(time.RFC3339))
	}
	body, err := s.get(ctx, s.interactionsPath, q)
	if err != nil {
		return nil, err
	}
	records, err := decodeList[interactionRecord](body, "interactions")
	if err != nil {
		return nil, err
	}
	return toInteractions(records, since), nil
}

func (s *HTTPSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

// State 返回熔断器当前状态
func (s *HTTPSource) State() gobreaker.State {
	return s.cb.State()
}

func (s *HTTPSource) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	u := s.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	body, err := s.cb.Execute(func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "application/json")

		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
		}
		return data, nil
	})
	if err != nil {
		result := "failure"
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			result = "rejected"
		}
		metrics.CircuitBreakerRequests.WithLabelValues(s.name, result).Inc()
		return nil, core.NewIOError(core.ModuleSource, "http "+path, err)
	}
	metrics.CircuitBreakerRequests.WithLabelValues(s.name, "success").Inc()
	return body, nil
}

// decodeList 解析数组，或 {key: [...]} 包装
func decodeList[T any](data []byte, key string) ([]T, error) {
	var list []T
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}
	var wrapped map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, core.InvalidInputError(core.ModuleSource, "decode %s: %v", key, err)
	}
	raw, ok := wrapped[key]
	if !ok {
		return nil, core.InvalidInputError(core.ModuleSource, "decode %s: missing %q field", key, key)
	}
	if err := json.Unmarshal(raw, &list); err != nil {
		return nil, core.InvalidInputError(core.ModuleSource, "decode %s: %v", key, err)
	}
	return list, nil
}

func stateToFloat(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

var _ core.DataSource = (*HTTPSource)(nil)
