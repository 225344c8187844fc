package tensor

import "sync"

// MatVec computes dst = w * x, treating each row of w as one output
// element. Rows are partitioned across up to `threads` goroutines, all
// joined before returning, so parallelism never escapes the call.
func MatVec(dst []float32, w *Mat, x []float32, threads int) {
	if w.R == 0 || w.C == 0 {
		return
	}
	if len(dst) < w.R || len(x) < w.C {
		panic("tensor: matvec shape mismatch")
	}
	if threads > w.R {
		threads = w.R
	}
	if threads <= 1 {
		matVecRange(dst, w, x, 0, w.R)
		return
	}

	chunk := (w.R + threads - 1) / threads
	var wg sync.WaitGroup
	for rs := 0; rs < w.R; rs += chunk {
		re := rs + chunk
		if re > w.R {
			re = w.R
		}
		wg.Add(1)
		go func(rs, re int) {
			defer wg.Done()
			matVecRange(dst, w, x, rs, re)
		}(rs, re)
	}
	wg.Wait()
}

func matVecRange(dst []float32, w *Mat, x []float32, rs, re int) {
	switch w.DType {
	case DTypeF32:
		matVecRangeF32(dst, w, x, rs, re)
	case DTypeF16:
		matVecRangeF16(dst, w, x, rs, re)
	case DTypeQ4_0, DTypeQ4_1:
		matVecRangeQ4(dst, w, x, rs, re)
	default:
		panic("tensor: unsupported dtype for matvec")
	}
}

func matVecRangeF32(dst []float32, w *Mat, x []float32, rs, re int) {
	c := w.C
	for i := rs; i < re; i++ {
		row := w.Data[i*c : i*c+c]
		var sum float32
		j := 0
		for ; j+3 < c; j += 4 {
			sum += row[j]*x[j] + row[j+1]*x[j+1] + row[j+2]*x[j+2] + row[j+3]*x[j+3]
		}
		for ; j < c; j++ {
			sum += row[j] * x[j]
		}
		dst[i] = sum
	}
}

func matVecRangeF16(dst []float32, w *Mat, x []float32, rs, re int) {
	c := w.C
	raw := w.Raw
	for i := rs; i < re; i++ {
		off := i * c * 2
		var sum float32
		for j := 0; j < c; j++ {
			sum += fp16ToF32(u16le(raw, off+j*2)) * x[j]
		}
		dst[i] = sum
	}
}

func matVecRangeQ4(dst []float32, w *Mat, x []float32, rs, re int) {
	rb, _ := RowBytes(w.DType, w.C)
	var row [q4BlockLen]float32
	blocks := w.C / q4BlockLen
	for i := rs; i < re; i++ {
		rowRaw := w.Raw[i*rb : (i+1)*rb]
		var sum float32
		for b := 0; b < blocks; b++ {
			bb := w.DType.TypeSize()
			dequantRow(w.DType, rowRaw[b*bb:(b+1)*bb], row[:])
			xb := x[b*q4BlockLen:]
			for j := 0; j < q4BlockLen; j++ {
				sum += row[j] * xb[j]
			}
		}
		dst[i] = sum
	}
}
