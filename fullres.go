package fiatlux

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

// DefaultPixelBudget bounds full-resolution images kept for rendering.
const DefaultPixelBudget = 20_000_000

// FullResResult is delivered by FullResLoader once per job.
type FullResResult struct {
	// Generation echoes the selection generation the job was started for.
	Generation uint64
	JobID      uuid.UUID
	// Image is nil when Err is set; the receiver owns it.
	Image *DecodedImage
	Err   error
}

// FullResLoader decodes full-resolution images off the caller's goroutine.
// Each job runs in its own goroutine that exits after delivering the result.
type FullResLoader struct {
	decoder Decoder
	budget  int
}

// NewFullResLoader creates a loader. A budget <= 0 uses DefaultPixelBudget.
func NewFullResLoader(dec Decoder, budget int) *FullResLoader {
	if budget <= 0 {
		budget = DefaultPixelBudget
	}
	return &FullResLoader{decoder: dec, budget: budget}
}

// Budget returns the pixel budget.
func (l *FullResLoader) Budget() int { return l.budget }

// Start decodes a private copy of buf at full resolution. The returned channel
// yields exactly one result and is then closed. Images above the pixel budget
// are dropped with ErrPixelBudget.
func (l *FullResLoader) Start(ctx context.Context, generation uint64, buf []byte) <-chan FullResResult {
	job := FullResResult{Generation: generation, JobID: uuid.New()}
	data := append([]byte(nil), buf...)
	out := make(chan FullResResult, 1)

	go func() {
		defer close(out)

		log := Logger().With("job", job.JobID.String(), "generation", generation)
		log.Debug("full resolution decode started", "bytes", humanize.Bytes(uint64(len(data))))

		img, err := l.decoder.Decode(ctx, data, false)
		switch {
		case err != nil:
			job.Err = fmt.Errorf("full resolution decode: %w", err)
		case img.Pixels() > l.budget:
			job.Err = fmt.Errorf("%w: %dx%d is %s pixels, budget %s", ErrPixelBudget,
				img.Width, img.Height, humanize.Comma(int64(img.Pixels())), humanize.Comma(int64(l.budget)))
			log.Warn("full resolution exceeds pixel budget, keeping preview tier", "error", job.Err)
		default:
			job.Image = img
		}
		out <- job
	}()

	return out
}
