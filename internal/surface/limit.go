package surface

import "image"

// Limit caps what reaches the LEDs. The zero value passes frames through.
type Limit struct {
	// Brightness scales every channel; 0 means full.
	Brightness float64 `yaml:"brightness,omitempty"`
	// WhiteCap bounds r+g+b per pixel in 0..3.
	WhiteCap float64 `yaml:"whiteCap,omitempty"`
	// ChannelMA is the draw of one channel at full scale; WS2812 is about 20.
	ChannelMA float64 `yaml:"channelMA,omitempty"`
	// BudgetMA bounds the estimated draw of the whole strip; 0 disables it.
	BudgetMA float64 `yaml:"budgetMA,omitempty"`
	// Knee is the fraction of the budget where scaling starts.
	Knee float64 `yaml:"knee,omitempty"`
}

const (
	defaultChannelMA = 20
	defaultKnee      = 0.9
)

func (l Limit) active() bool {
	return (l.Brightness > 0 && l.Brightness < 1) || (l.WhiteCap > 0 && l.WhiteCap < 3) || l.BudgetMA > 0
}

// Apply scales line in place: brightness, then the per pixel white cap,
// then the strip budget with a soft knee. It returns the estimated draw in
// mA after limiting.
func (l Limit) Apply(line *image.NRGBA) float64 {
	if !l.active() {
		return l.draw(line)
	}
	n := len(line.Pix) / 4
	rgb := make([]float64, 3*n)
	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			rgb[3*i+c] = float64(line.Pix[4*i+c]) / 255
		}
	}

	if l.Brightness > 0 && l.Brightness < 1 {
		scale(rgb, l.Brightness)
	}
	if l.WhiteCap > 0 {
		for i := 0; i < n; i++ {
			px := rgb[3*i : 3*i+3]
			if s := px[0] + px[1] + px[2]; s > l.WhiteCap {
				scale(px, l.WhiteCap/s)
			}
		}
	}
	if l.BudgetMA > 0 {
		total := sum(rgb) * l.channel()
		if ratio := total / l.BudgetMA; ratio > l.knee() {
			scale(rgb, l.compress(ratio)/ratio)
		}
	}

	for i := 0; i < n; i++ {
		for c := 0; c < 3; c++ {
			line.Pix[4*i+c] = uint8(rgb[3*i+c]*255 + 0.5)
		}
	}
	return sum(rgb) * l.channel()
}

// compress maps a draw ratio above the knee onto [knee, 1), so the strip
// stays under budget however bright the frame.
func (l Limit) compress(ratio float64) float64 {
	k := l.knee()
	over := ratio - k
	return k + over/(1+over/(1-k))
}

func (l Limit) draw(line *image.NRGBA) float64 {
	var total float64
	for i := 0; i+3 < len(line.Pix); i += 4 {
		total += float64(line.Pix[i]) + float64(line.Pix[i+1]) + float64(line.Pix[i+2])
	}
	return total / 255 * l.channel()
}

func (l Limit) channel() float64 {
	if l.ChannelMA > 0 {
		return l.ChannelMA
	}
	return defaultChannelMA
}

func (l Limit) knee() float64 {
	if l.Knee > 0 && l.Knee < 1 {
		return l.Knee
	}
	return defaultKnee
}

func scale(v []float64, s float64) {
	if s >= 1 {
		return
	}
	for i := range v {
		v[i] *= s
	}
}

func sum(v []float64) float64 {
	var t float64
	for _, x := range v {
		t += x
	}
	return t
}
