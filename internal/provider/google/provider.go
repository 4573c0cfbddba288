// Package google implements the provider boundary on Google Cloud
// Speech-to-Text streaming recognition.
package google

import (
	"context"
	"io"
	"strconv"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "google.golang.org/genproto/googleapis/cloud/speech/v1"

	"clinical-transcription-service/internal/models"
	"clinical-transcription-service/internal/provider"
)

// Provider connects streaming recognition sessions. Requires
// GOOGLE_APPLICATION_CREDENTIALS to be set.
type Provider struct {
	client *speech.Client
}

// New creates the provider with a shared speech client.
func New(ctx context.Context) (*Provider, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, provider.ClassifyGRPC(err)
	}
	return &Provider{client: c}, nil
}

// Close releases the underlying client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Connect opens a streaming recognition session and sends the initial
// config. Params.RedactPII has no equivalent in the v1 API and is
// ignored here; redaction happens downstream in the masking engine.
func (p *Provider) Connect(ctx context.Context, params provider.Params) (provider.Stream, error) {
	ctx, cancel := context.WithCancel(ctx)
	sr, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		cancel()
		return nil, provider.ClassifyGRPC(err)
	}

	cfg := &speechpb.RecognitionConfig{
		Encoding:        mapEncoding(params.Encoding),
		SampleRateHertz: int32(params.SampleRateHz),
		LanguageCode:    params.Language,
	}
	if params.SpeakerCount > 0 {
		cfg.DiarizationConfig = &speechpb.SpeakerDiarizationConfig{
			EnableSpeakerDiarization: true,
			MinSpeakerCount:          1,
			MaxSpeakerCount:          int32(params.SpeakerCount),
		}
	}

	err = sr.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config:         cfg,
				InterimResults: true,
			},
		},
	})
	if err != nil {
		cancel()
		return nil, provider.ClassifyGRPC(err)
	}

	s := &stream{
		sr:      sr,
		cancel:  cancel,
		results: make(chan provider.Result, 16),
		drained: closedChan(),
	}
	go s.recvLoop()
	return s, nil
}

func mapEncoding(enc string) speechpb.RecognitionConfig_AudioEncoding {
	switch enc {
	case "LINEAR16":
		return speechpb.RecognitionConfig_LINEAR16
	case "MULAW":
		return speechpb.RecognitionConfig_MULAW
	case "FLAC":
		return speechpb.RecognitionConfig_FLAC
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

type stream struct {
	sr      speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	results chan provider.Result
	drained <-chan struct{}

	mu  sync.Mutex
	err error
}

// Send writes one chunk. gRPC applies its own flow control and blocks
// instead of reporting backpressure, so ErrBackpressure is never
// returned here.
func (s *stream) Send(chunk []byte) error {
	err := s.sr.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	})
	return provider.ClassifyGRPC(err)
}

func (s *stream) Drained() <-chan struct{} { return s.drained }

func (s *stream) Results() <-chan provider.Result { return s.results }

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) CloseSend() error {
	return s.sr.CloseSend()
}

func (s *stream) Close() error {
	s.cancel()
	return nil
}

func (s *stream) recvLoop() {
	defer close(s.results)
	for {
		resp, err := s.sr.Recv()
		if err != nil {
			if err != io.EOF {
				s.mu.Lock()
				s.err = provider.ClassifyGRPC(err)
				s.mu.Unlock()
			}
			return
		}
		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			alt := r.Alternatives[0]
			s.results <- provider.Result{
				Text:       alt.Transcript,
				IsFinal:    r.IsFinal,
				Confidence: float64(alt.Confidence),
				Words:      wordTags(alt.Words),
			}
		}
	}
}

func wordTags(words []*speechpb.WordInfo) []models.WordTag {
	if len(words) == 0 {
		return nil
	}
	tags := make([]models.WordTag, 0, len(words))
	for _, w := range words {
		tags = append(tags, models.WordTag{
			Speaker: strconv.Itoa(int(w.SpeakerTag)),
			Type:    models.WordTypeSpeech,
		})
	}
	return tags
}

func closedChan() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
