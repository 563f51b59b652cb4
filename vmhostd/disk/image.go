//go:generate go run go.uber.org/mock/mockgen -destination=image_mocks.go -package=disk . ImageFetcher

package disk

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"syscall"

	"github.com/dustin/go-humanize"

	"vmhost/vmhostd/util"
)

const (
	FormatRaw   = "raw"
	FormatQcow2 = "qcow2"
)

type ImageFetcher interface {
	CheckExists(name string) (bool, error)
	Add(name string, size uint64, format string) error
	FetchFileSize(name string) (uint64, error)
	FetchFileUsage(name string) (uint64, error)
}

type ImageCmds struct {
	QemuImg string
}

type ImageService struct {
	ImageImpl ImageFetcher
}

var pathExistsFunc = util.PathExists

var runCmdFunc = util.RunCmd

var myStat = syscall.Stat

func NewImageService(impl ImageFetcher) ImageService {
	if impl == nil {
		impl = &ImageCmds{QemuImg: "qemu-img"}
	}

	return ImageService{
		ImageImpl: impl,
	}
}

// Ensure creates the image at name unless something already exists there.
// It reports whether a new image was created.
func (n ImageService) Ensure(name string, size uint64, format string) (bool, error) {
	if name == "" {
		return false, errDiskInvalidName
	}

	exists, err := n.ImageImpl.CheckExists(name)
	if err != nil {
		return false, fmt.Errorf("error checking image exists: %w", err)
	}

	if exists {
		slog.Debug("disk image exists, not creating", "name", name)

		return false, nil
	}

	err = n.Create(name, size, format)
	if err != nil {
		return false, err
	}

	return true, nil
}

func (n ImageService) Create(name string, size uint64, format string) error {
	if size == 0 {
		return errDiskInvalidSize
	}

	if format != FormatRaw && format != FormatQcow2 {
		return fmt.Errorf("%w: %s", errDiskInvalidFormat, format)
	}

	err := util.EnsureParentDir(name)
	if err != nil {
		return fmt.Errorf("error creating image: %w", err)
	}

	err = n.ImageImpl.Add(name, size, format)
	if err != nil {
		return fmt.Errorf("error creating image: %w", err)
	}

	slog.Debug("created disk image", "name", name, "size", humanize.IBytes(size), "format", format)

	return nil
}

func (n ImageService) GetSize(name string) (uint64, error) {
	size, err := n.ImageImpl.FetchFileSize(name)
	if err != nil {
		return 0, fmt.Errorf("error getting image size: %w", err)
	}

	return size, nil
}

func (n ImageService) GetUsage(name string) (uint64, error) {
	usage, err := n.ImageImpl.FetchFileUsage(name)
	if err != nil {
		return 0, fmt.Errorf("error getting image usage: %w", err)
	}

	return usage, nil
}

func (f ImageCmds) CheckExists(name string) (bool, error) {
	exists, err := pathExistsFunc(name)
	if err != nil {
		// assume it exists so we never overwrite it
		return true, fmt.Errorf("error checking if disk exists: %w", err)
	}

	return exists, nil
}

func (f ImageCmds) Add(name string, size uint64, format string) error {
	if format == FormatQcow2 {
		return f.addQcow2(name, size)
	}

	imageFile, err := os.OpenFile(name, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return errDiskExists
		}

		return fmt.Errorf("error creating disk file: %w", err)
	}

	// truncate leaves the file sparse
	err = imageFile.Truncate(int64(size)) //nolint:gosec
	if err != nil {
		_ = imageFile.Close()
		_ = os.Remove(name)

		return fmt.Errorf("error sizing disk file: %w", err)
	}

	err = imageFile.Close()
	if err != nil {
		return fmt.Errorf("error closing disk file: %w", err)
	}

	return nil
}

func (f ImageCmds) addQcow2(name string, size uint64) error {
	stdOutBytes, stdErrBytes, returnCode, err := runCmdFunc(
		f.QemuImg,
		[]string{"create", "-f", FormatQcow2, name, strconv.FormatUint(size, 10)},
	)
	if err != nil {
		slog.Error("failed to create qcow2 disk",
			"stdOutBytes", stdOutBytes,
			"stdErrBytes", stdErrBytes,
			"returnCode", returnCode,
			"err", err,
		)

		return fmt.Errorf("error creating qcow2 disk: %w", err)
	}

	return nil
}

func (f ImageCmds) FetchFileSize(name string) (uint64, error) {
	diskFileStat, err := os.Stat(name)
	if err != nil {
		return 0, fmt.Errorf("error checking disk size: %w", err)
	}

	return uint64(diskFileStat.Size()), nil //nolint:gosec
}

// FetchFileUsage returns the bytes actually allocated on disk.
func (f ImageCmds) FetchFileUsage(name string) (uint64, error) {
	var stat syscall.Stat_t

	err := myStat(name, &stat)
	if err != nil {
		return 0, fmt.Errorf("error checking disk usage: %w", err)
	}

	const blockSize = 512

	return uint64(stat.Blocks) * blockSize, nil //nolint:gosec
}

// ParseSize accepts a plain number of gigabytes ("10") or a humanized size ("10GiB", "512M").
func ParseSize(size string) (uint64, error) {
	gigs, err := strconv.ParseUint(size, 10, 64)
	if err == nil {
		if gigs == 0 {
			return 0, errDiskInvalidSize
		}

		return gigs * humanize.GiByte, nil
	}

	bytes, err := humanize.ParseBytes(size)
	if err != nil || bytes == 0 {
		return 0, fmt.Errorf("%w: %s", errDiskInvalidSize, size)
	}

	return bytes, nil
}
