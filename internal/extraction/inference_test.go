package extraction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// mockBackend is a mock implementation of Backend
type mockBackend struct {
	mu       sync.Mutex
	replies  map[string]string
	errs     map[string]error
	credErr  error
	calls    []string
	complete func(ctx context.Context, model string) (string, error)
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		replies: make(map[string]string),
		errs:    make(map[string]error),
	}
}

func (m *mockBackend) Name() string {
	return "mock"
}

func (m *mockBackend) CheckCredentials() error {
	return m.credErr
}

func (m *mockBackend) Complete(ctx context.Context, model string, req *Request) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, model)
	m.mu.Unlock()

	if m.complete != nil {
		return m.complete(ctx, model)
	}
	if err, ok := m.errs[model]; ok {
		return "", err
	}
	return m.replies[model], nil
}

func (m *mockBackend) Close() error {
	return nil
}

var _ = Describe("InferenceClient", func() {
	var (
		backend *mockBackend
		models  []string
		ctx     context.Context
		reply   *Reply
		err     error
	)

	BeforeEach(func() {
		backend = newMockBackend()
		models = []string{"big-model", "small-model"}
		ctx = context.Background()
	})

	JustBeforeEach(func() {
		client, newErr := NewInferenceClient(backend, models)
		Expect(newErr).NotTo(HaveOccurred())
		reply, err = client.Infer(ctx, &Request{Blocks: []ContentBlock{InstructionBlock{Text: "go"}}})
	})

	When("the first model answers", func() {
		BeforeEach(func() {
			backend.replies["big-model"] = "{}"
		})

		It("should return its reply", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(reply).To(Equal(&Reply{Text: "{}", Model: "big-model"}))
		})

		It("should not try the fallback", func() {
			Expect(backend.calls).To(Equal([]string{"big-model"}))
		})
	})

	When("the first model is unavailable and the second answers", func() {
		BeforeEach(func() {
			backend.errs["big-model"] = fmt.Errorf("%w: big-model not found", ErrModelUnavailable)
			backend.replies["small-model"] = `{"vendor":"REWE"}`
		})

		It("should return the second model's reply", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(reply.Text).To(Equal(`{"vendor":"REWE"}`))
			Expect(reply.Model).To(Equal("small-model"))
		})

		It("should try the models in order", func() {
			Expect(backend.calls).To(Equal([]string{"big-model", "small-model"}))
		})
	})

	When("the first model fails with an auth error", func() {
		var setupErr error

		BeforeEach(func() {
			setupErr = errors.New("401 invalid x-api-key")
			backend.errs["big-model"] = setupErr
			backend.replies["small-model"] = "{}"
		})

		It("returns a BackendFault wrapping the error", func() {
			var fault *BackendFault
			Expect(errors.As(err, &fault)).To(BeTrue())
			Expect(fault.Model).To(Equal("big-model"))
			Expect(err).To(MatchError(setupErr))
		})

		It("should not try the second model", func() {
			Expect(backend.calls).To(Equal([]string{"big-model"}))
		})
	})

	When("every model is unavailable", func() {
		BeforeEach(func() {
			backend.errs["big-model"] = fmt.Errorf("%w: big", ErrModelUnavailable)
			backend.errs["small-model"] = fmt.Errorf("%w: small", ErrModelUnavailable)
		})

		It("returns a BackendUnavailableError carrying the last error", func() {
			var unavailable *BackendUnavailableError
			Expect(errors.As(err, &unavailable)).To(BeTrue())
			Expect(unavailable.Models).To(Equal(models))
			Expect(unavailable.Err).To(MatchError(ContainSubstring("small")))
		})

		It("should classify as a generic failure", func() {
			Expect(Classify(err)).To(Equal(KindFailure))
		})
	})

	When("the credential check fails", func() {
		BeforeEach(func() {
			backend.credErr = &ConfigurationError{Reason: "missing API key"}
		})

		It("returns the configuration error", func() {
			Expect(Classify(err)).To(Equal(KindConfiguration))
		})

		It("should not call the backend", func() {
			Expect(backend.calls).To(BeEmpty())
		})
	})

	When("the deadline expires during a call", func() {
		BeforeEach(func() {
			var cancel context.CancelFunc
			ctx, cancel = context.WithCancel(context.Background())
			backend.complete = func(ctx context.Context, model string) (string, error) {
				cancel()
				return "", fmt.Errorf("calling backend: %w", ctx.Err())
			}
		})

		It("returns a timeout error without falling back", func() {
			Expect(err).To(MatchError(ErrTimeout))
			Expect(Classify(err)).To(Equal(KindTimeout))
			Expect(backend.calls).To(HaveLen(1))
		})
	})
})

var _ = Describe("NewInferenceClient", func() {
	It("requires at least one model", func() {
		_, err := NewInferenceClient(newMockBackend(), nil)
		Expect(err).To(HaveOccurred())
	})

	It("requires a backend", func() {
		_, err := NewInferenceClient(nil, []string{"m"})
		Expect(err).To(HaveOccurred())
	})
})
