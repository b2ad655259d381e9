package data

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/neolearn/neolearn/internal/tensor"
)

// MNIST file names as distributed.
const (
	MNISTTrainImages = "train-images-idx3-ubyte"
	MNISTTrainLabels = "train-labels-idx1-ubyte"
	MNISTTestImages  = "t10k-images-idx3-ubyte"
	MNISTTestLabels  = "t10k-labels-idx1-ubyte"
)

const (
	idxImagesMagic = 2051
	idxLabelsMagic = 2049
)

// LoadMNIST reads the train and test splits from dir.
//
// Pixels are scaled to [0, 1]. With flatten, samples are [784]; otherwise
// they are [1, 28, 28] for convolutional models.
func LoadMNIST(dir string, flatten bool, dev tensor.Device) (train, test Dataset, err error) {
	train, err = loadIDXPair(filepath.Join(dir, MNISTTrainImages), filepath.Join(dir, MNISTTrainLabels), flatten, dev)
	if err != nil {
		return Dataset{}, Dataset{}, fmt.Errorf("mnist train: %w", err)
	}
	test, err = loadIDXPair(filepath.Join(dir, MNISTTestImages), filepath.Join(dir, MNISTTestLabels), flatten, dev)
	if err != nil {
		return Dataset{}, Dataset{}, fmt.Errorf("mnist test: %w", err)
	}
	return train, test, nil
}

func loadIDXPair(imagesPath, labelsPath string, flatten bool, dev tensor.Device) (Dataset, error) {
	pixels, n, rows, cols, err := readIDXImages(imagesPath)
	if err != nil {
		return Dataset{}, err
	}
	labels, err := readIDXLabels(labelsPath)
	if err != nil {
		return Dataset{}, err
	}

	x := make([]float64, len(pixels))
	for i, p := range pixels {
		x[i] = float64(p) / 255.0
	}
	shape := tensor.Shape{n, rows * cols}
	if !flatten {
		shape = tensor.Shape{n, 1, rows, cols}
	}
	return NewDataset(tensor.New(x, shape, dev), labels)
}

// readIDXImages reads an image file in IDX format.
//
// IDX file format for images:
//
//	magic number: 0x00000803 (2051)
//	number of images: 4 bytes
//	number of rows: 4 bytes (28)
//	number of cols: 4 bytes (28)
//	pixel data: unsigned bytes (0-255)
func readIDXImages(filename string) (pixels []byte, n, rows, cols int, err error) {
	//nolint:gosec // G304: dataset directory comes from the run configuration
	file, err := os.Open(filename)
	if err != nil {
		return nil, 0, 0, 0, err
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var hdr struct{ Magic, Count, Rows, Cols uint32 }
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("failed to read header: %w", err)
	}
	if hdr.Magic != idxImagesMagic {
		return nil, 0, 0, 0, fmt.Errorf("invalid magic number: got %d, want %d", hdr.Magic, idxImagesMagic)
	}

	n, rows, cols = int(hdr.Count), int(hdr.Rows), int(hdr.Cols)
	pixels = make([]byte, n*rows*cols)
	if _, err := io.ReadFull(r, pixels); err != nil {
		return nil, 0, 0, 0, fmt.Errorf("failed to read %d images: %w", n, err)
	}
	return pixels, n, rows, cols, nil
}

// readIDXLabels reads a label file in IDX format.
//
// IDX file format for labels:
//
//	magic number: 0x00000801 (2049)
//	number of labels: 4 bytes
//	label data: unsigned bytes (0-9)
func readIDXLabels(filename string) ([]int, error) {
	//nolint:gosec // G304: dataset directory comes from the run configuration
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	r := bufio.NewReader(file)

	var hdr struct{ Magic, Count uint32 }
	if err := binary.Read(r, binary.BigEndian, &hdr); err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if hdr.Magic != idxLabelsMagic {
		return nil, fmt.Errorf("invalid magic number: got %d, want %d", hdr.Magic, idxLabelsMagic)
	}

	raw := make([]byte, hdr.Count)
	if _, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("failed to read labels: %w", err)
	}
	labels := make([]int, len(raw))
	for i, b := range raw {
		labels[i] = int(b)
	}
	return labels, nil
}
