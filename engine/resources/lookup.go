package resources

import (
	"github.com/chewxy/math32"
	"golang.org/x/exp/rand"

	"github.com/spaghettifunk/maple/engine/math"
)

// Names of the precomputed lookup textures consumed by the lighting pass.
const (
	LookupBRDF      = "brdf_lut"
	LookupLTC1      = "ltc_1"
	LookupLTC2      = "ltc_2"
	LookupBlueNoise = "blue_noise"
)

type texelFunc func(u, v float32) [4]float32

func generateLookup(name string, size uint32, fn texelFunc) (*Image, error) {
	pixels := make([]byte, size*size*4)
	for y := uint32(0); y < size; y++ {
		for x := uint32(0); x < size; x++ {
			// sample texel centers
			u := (float32(x) + 0.5) / float32(size)
			v := (float32(y) + 0.5) / float32(size)
			t := fn(u, v)
			o := (y*size + x) * 4
			for c := 0; c < 4; c++ {
				pixels[o+uint32(c)] = uint8(math.Clamp(t[c], 0, 1)*255 + 0.5)
			}
		}
	}
	return NewImage(name, size, size, pixels)
}

// GenerateBRDFLUT tabulates the split sum environment BRDF scale and bias
// over (NdotV, roughness) with the analytic mobile fit.
func GenerateBRDFLUT(size uint32) (*Image, error) {
	return generateLookup(LookupBRDF, size, func(nDotV, roughness float32) [4]float32 {
		c0 := [4]float32{-1, -0.0275, -0.572, 0.022}
		c1 := [4]float32{1, 0.0425, 1.04, -0.04}
		r := [4]float32{}
		for i := range r {
			r[i] = roughness*c0[i] + c1[i]
		}
		a004 := math32.Min(r[0]*r[0], math32.Exp2(-9.28*nDotV))*r[0] + r[1]
		scale := a004*-1.04 + r[2]
		bias := a004*1.04 + r[3]
		return [4]float32{scale, bias, 0, 1}
	})
}

// GenerateLTC1 stores the inverse LTC matrix terms. Without fitted data the
// matrix is the identity, which reduces area lights to a cosine lobe.
func GenerateLTC1(size uint32) (*Image, error) {
	return generateLookup(LookupLTC1, size, func(float32, float32) [4]float32 {
		return [4]float32{1, 0, 0, 1}
	})
}

// GenerateLTC2 stores the LTC magnitude, fresnel and sphere clipping terms.
func GenerateLTC2(size uint32) (*Image, error) {
	return generateLookup(LookupLTC2, size, func(float32, float32) [4]float32 {
		return [4]float32{1, 0, 0, 0}
	})
}

// GenerateBlueNoise fills a texture with seeded white noise. The seed keeps frames reproducible.
func GenerateBlueNoise(size uint32, seed uint64) (*Image, error) {
	rng := rand.New(rand.NewSource(seed))
	return generateLookup(LookupBlueNoise, size, func(float32, float32) [4]float32 {
		return [4]float32{rng.Float32(), rng.Float32(), rng.Float32(), rng.Float32()}
	})
}
