package detectors

import (
	"fmt"
	"math"

	"SignalFuse/internal/domain/models"
	"SignalFuse/internal/services/features"
)

const (
	renkoBaseConfidence = 60
	renkoMaxBoost       = 30
	renkoMaxConfidence  = 95
	renkoMaxVolumeBoost = 1.2
	renkoMaxBricks      = 100000
)

type renkoParams struct {
	BrickSize            float64 `param:"brick_size" default:"0" validate:"gte=0"`
	ATRPeriod            int     `param:"atr_period" default:"14" validate:"gte=1,lte=500"`
	ATRMultiplier        float64 `param:"atr_multiplier" default:"1.0" validate:"gt=0"`
	MinConsecutiveBricks int     `param:"min_consecutive_bricks" default:"3" validate:"gte=1,lte=10000"`
	VolumeConfirmation   bool    `param:"volume_confirmation" default:"true"`
	VolumeLookback       int     `param:"volume_lookback" default:"10" validate:"gte=1,lte=1000"`
	VolumeRatio          float64 `param:"volume_ratio" default:"1.2" validate:"gt=0"`
}

// Brick is one Renko block.
type Brick struct {
	Up     bool
	Open   float64
	Close  float64
	Volume float64
	Bar    int
}

func evaluateRenko(s models.Series, p Params) (*models.Signal, error) {
	var cfg renkoParams
	if err := decodeParams(RenkoBreakout, p, &cfg); err != nil {
		return nil, err
	}
	n := s.Len()
	need := 2
	if cfg.BrickSize == 0 {
		need = cfg.ATRPeriod + 1
	}
	if n < need {
		return nil, insufficient(RenkoBreakout, need, n)
	}

	bars := s.Bars()
	size := cfg.BrickSize
	mode := "fixed"
	if size == 0 {
		atr, _ := features.ATR(bars, cfg.ATRPeriod)
		size = atr * cfg.ATRMultiplier
		mode = "atr"
	}
	if size <= 0 {
		return nil, nil
	}

	bricks := BuildBricks(bars, size)
	run := trailingRun(bricks)
	if run < cfg.MinConsecutiveBricks {
		return nil, nil
	}

	volMult := 1.0
	volNote := "volume confirmation off"
	if cfg.VolumeConfirmation {
		ratio, ok := brickVolumeRatio(bricks, cfg.VolumeLookback, cfg.VolumeRatio)
		if !ok || ratio < cfg.VolumeRatio {
			return nil, nil
		}
		volMult = math.Min(renkoMaxVolumeBoost, ratio/cfg.VolumeRatio)
		volNote = fmt.Sprintf("brick volume %.2fx average", ratio)
	}

	strength := float64(run) / float64(2*cfg.MinConsecutiveBricks)
	conf := math.Min(renkoMaxConfidence, (renkoBaseConfidence+math.Min(renkoMaxBoost, strength*renkoMaxBoost))*volMult)

	lastBrick := bricks[len(bricks)-1]
	dir, stop := models.Buy, lastBrick.Close-2*size
	if !lastBrick.Up {
		dir, stop = models.Sell, lastBrick.Close+2*size
	}
	risk := models.RiskMedium
	if run >= 2*cfg.MinConsecutiveBricks {
		risk = models.RiskLow
	}
	sig := newSignal(RenkoBreakout, s, dir, conf, risk,
		fmt.Sprintf("%d consecutive %s bricks of %.4f (%s), %s", run, brickWord(lastBrick.Up), size, mode, volNote))
	sig.StopLoss = models.Float64Ptr(stop)
	return sig, nil
}

// BuildBricks converts closes into Renko bricks of the given size. A bar that forms several
// bricks splits its volume evenly across them.
func BuildBricks(bars []models.Bar, size float64) []Brick {
	if len(bars) < 2 || size <= 0 {
		return nil
	}
	var out []Brick
	base := bars[0].Close
	for i := 1; i < len(bars) && len(out) < renkoMaxBricks; i++ {
		c := bars[i].Close
		first := len(out)
		for c >= base+size && len(out) < renkoMaxBricks {
			out = append(out, Brick{Up: true, Open: base, Close: base + size, Bar: i})
			base += size
		}
		for c <= base-size && len(out) < renkoMaxBricks {
			out = append(out, Brick{Up: false, Open: base, Close: base - size, Bar: i})
			base -= size
		}
		if formed := len(out) - first; formed > 0 {
			share := bars[i].Volume / float64(formed)
			for j := first; j < len(out); j++ {
				out[j].Volume = share
			}
		}
	}
	return out
}

func trailingRun(bricks []Brick) int {
	if len(bricks) == 0 {
		return 0
	}
	dir := bricks[len(bricks)-1].Up
	run := 0
	for i := len(bricks) - 1; i >= 0 && bricks[i].Up == dir; i-- {
		run++
	}
	return run
}

// brickVolumeRatio compares the latest brick's volume with the average of up to lookback
// preceding bricks. A zero average counts as confirmed at exactly the required ratio.
func brickVolumeRatio(bricks []Brick, lookback int, required float64) (float64, bool) {
	if len(bricks) < 2 {
		return 0, false
	}
	from := max(0, len(bricks)-1-lookback)
	prev := make([]float64, 0, len(bricks)-1-from)
	for _, b := range bricks[from : len(bricks)-1] {
		prev = append(prev, b.Volume)
	}
	avg := features.Mean(prev)
	cur := bricks[len(bricks)-1].Volume
	if avg <= 0 {
		if cur > 0 {
			return required, true
		}
		return 0, false
	}
	return cur / avg, true
}

func brickWord(up bool) string {
	if up {
		return "up"
	}
	return "down"
}
