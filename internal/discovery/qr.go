package discovery

import (
	"fmt"
	"image"
	_ "image/jpeg" // register decoder for photographed codes
	"image/png"
	"os"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// DecodeQR returns the text encoded in the QR code found in img.
func DecodeQR(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", fmt.Errorf("preparing image: %w", err)
	}
	result, err := qrcode.NewQRCodeReader().Decode(bmp, nil)
	if err != nil {
		return "", fmt.Errorf("decoding QR code: %w", err)
	}
	return result.GetText(), nil
}

// DecodeQRFile reads a PNG or JPEG and decodes the QR code in it.
func DecodeQRFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return "", fmt.Errorf("reading image %s: %w", path, err)
	}
	return DecodeQR(img)
}

// EncodeQR renders text as a size x size QR code.
func EncodeQR(text string, size int) (image.Image, error) {
	matrix, err := qrcode.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, size, size, nil)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}
	return matrix, nil
}

// WriteQRFile writes text as a PNG QR code to path.
func WriteQRFile(path, text string, size int) error {
	img, err := EncodeQR(text, size)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err = png.Encode(f, img); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing PNG: %w", err)
	}
	return f.Close()
}
