package nnd

import "github.com/x448/float16"

func fp16ToFloat32(bits uint16) float32 {
	return float16.Frombits(bits).Float32()
}
