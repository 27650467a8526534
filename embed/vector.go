// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package embed

import "math"

// Normalize returns v scaled to unit length. A zero vector stays zero.
func Normalize(v []float32) []float32 {
	var magnitude float64
	for _, val := range v {
		magnitude += float64(val) * float64(val)
	}
	result := make([]float32, len(v))
	if magnitude == 0 {
		return result
	}
	inv := 1 / math.Sqrt(magnitude)
	for i, val := range v {
		result[i] = float32(float64(val) * inv)
	}
	return result
}

// usable reports whether v has the expected width, holds only finite
// values and is not all zeros.
func usable(v []float32, dim int) bool {
	if len(v) == 0 || (dim > 0 && len(v) != dim) {
		return false
	}
	nonZero := false
	for _, x := range v {
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
		if x != 0 {
			nonZero = true
		}
	}
	return nonZero
}
