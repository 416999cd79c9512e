package raster

import "math"

// Normalize 把波段线性拉伸到 8 位：clamp(round((v-min)/(max-min)*255), 0, 255)。
// 区间外的值（噪声、填充值）被截断；max <= min 时输出全 0；NaN 输出 0。
func Normalize(band Band, min, max float64) []uint8 {
	out := make([]uint8, len(band.Data))
	span := max - min
	if !(span > 0) {
		return out
	}
	for i, v := range band.Data {
		if math.IsNaN(v) {
			continue
		}
		s := math.Round((v - min) / span * 255)
		switch {
		case s <= 0:
			out[i] = 0
		case s >= 255:
			out[i] = 255
		default:
			out[i] = uint8(s)
		}
	}
	return out
}
