package yolo

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"plant-detector-go/internal/detector"

	"github.com/chewxy/math32"
	"github.com/disintegration/imaging"
	// imaging сам не регистрирует webp
	_ "golang.org/x/image/webp"
)

// padColor серый цвет полей letterbox, как в ultralytics
var padColor = color.NRGBA{R: 114, G: 114, B: 114, A: 255}

// letterbox вписывает изображение во вход модели с сохранением пропорций
type letterbox struct {
	srcW, srcH int
	dstW, dstH int
	newW, newH int
	left, top  int
	scale      float32
}

// newLetterbox считает масштаб и поля для изображения srcW x srcH
func newLetterbox(srcW, srcH, dstW, dstH int) letterbox {
	scale := math.Min(float64(dstW)/float64(srcW), float64(dstH)/float64(srcH))
	newW := max(1, int(math.Round(float64(srcW)*scale)))
	newH := max(1, int(math.Round(float64(srcH)*scale)))
	dw := float64(dstW-newW) / 2
	dh := float64(dstH-newH) / 2

	return letterbox{
		srcW:  srcW,
		srcH:  srcH,
		dstW:  dstW,
		dstH:  dstH,
		newW:  newW,
		newH:  newH,
		left:  int(math.Round(dw - 0.1)),
		top:   int(math.Round(dh - 0.1)),
		scale: float32(scale),
	}
}

// toSource переводит точку из координат входа модели в координаты исходного изображения
func (l letterbox) toSource(x, y float32) (float32, float32) {
	return (x - float32(l.left)) / l.scale, (y - float32(l.top)) / l.scale
}

// clip ограничивает точку границами исходного изображения
func (l letterbox) clip(x, y float32) (float32, float32) {
	return clamp(x, 0, float32(l.srcW)), clamp(y, 0, float32(l.srcH))
}

// prepare масштабирует и дополняет img, возвращает нормализованный NCHW RGB тензор
func (l letterbox) prepare(img image.Image) []float32 {
	resized := imaging.Resize(img, l.newW, l.newH, imaging.Linear)
	canvas := imaging.New(l.dstW, l.dstH, padColor)
	canvas = imaging.Paste(canvas, resized, image.Pt(l.left, l.top))

	channelSize := l.dstW * l.dstH
	data := make([]float32, channelSize*3)
	red := data[0:channelSize]
	green := data[channelSize : channelSize*2]
	blue := data[channelSize*2 : channelSize*3]

	i := 0
	for y := 0; y < l.dstH; y++ {
		row := canvas.Pix[y*canvas.Stride : y*canvas.Stride+l.dstW*4]
		for x := 0; x < l.dstW; x++ {
			red[i] = float32(row[x*4]) / 255.0
			green[i] = float32(row[x*4+1]) / 255.0
			blue[i] = float32(row[x*4+2]) / 255.0
			i++
		}
	}
	return data
}

// loadImage декодирует файл изображения с учетом EXIF ориентации
func loadImage(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", detector.ErrImageDecode, err)
	}
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return nil, fmt.Errorf("%w: image has zero size", detector.ErrImageDecode)
	}
	return img, nil
}

func clamp(v, lo, hi float32) float32 {
	return math32.Max(lo, math32.Min(v, hi))
}
