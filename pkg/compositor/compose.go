package compositor

import (
	"image"
)

// Channel 是一个归一化后的 8 位通道。
type Channel struct {
	Width  int
	Height int
	Pix    []uint8
}

// Compose 把三个同尺寸的通道合成为不透明的 RGB 图像。
func Compose(r, g, b Channel) (*image.RGBA, error) {
	if !sameShape(r, g, b) {
		return nil, &ChannelShapeMismatchError{Shapes: [3][2]int{
			{r.Width, r.Height}, {g.Width, g.Height}, {b.Width, b.Height},
		}}
	}
	img := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	n := r.Width * r.Height
	for i := 0; i < n; i++ {
		p := i * 4
		img.Pix[p] = r.Pix[i]
		img.Pix[p+1] = g.Pix[i]
		img.Pix[p+2] = b.Pix[i]
		img.Pix[p+3] = 0xff
	}
	return img, nil
}

func sameShape(r, g, b Channel) bool {
	for _, c := range []Channel{r, g, b} {
		if c.Width <= 0 || c.Height <= 0 || len(c.Pix) != c.Width*c.Height {
			return false
		}
	}
	return r.Width == g.Width && r.Width == b.Width && r.Height == g.Height && r.Height == b.Height
}
