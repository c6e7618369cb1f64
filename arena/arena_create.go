package arena

import (
	"github.com/cockroachdb/errors"
	"github.com/memphis242/ccol-sub000/internal/utils"
	"github.com/memphis242/ccol-sub000/memutils/metadata"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific arena and pool behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = utils.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateExternallySynchronized ensures that this arena or pool will not be synchronized internally.
	// The consumer must guarantee it is used from only one goroutine at a time or is synchronized by
	// some other mechanism.
	CreateExternallySynchronized CreateFlags = 1 << iota
	// CreateScrubOnReclaim zeroes every block as it is returned to the arena, so no data is left
	// behind in free memory
	CreateScrubOnReclaim
)

func init() {
	CreateExternallySynchronized.Register("CreateExternallySynchronized")
	CreateScrubOnReclaim.Register("CreateScrubOnReclaim")
}

const (
	// DefaultRegionSize is the size in bytes of the region an Arena manages when none is provided
	// via CreateOptions
	DefaultRegionSize int = 100000
	// DefaultPoolSize is the number of slots in a HandlePool when none is provided via CreateOptions
	DefaultPoolSize int = 128
)

// CreateOptions contains optional settings when creating an Arena or HandlePool. It is valid to
// leave all the fields blank.
type CreateOptions struct {
	// Flags indicates specific behaviors to activate or deactivate
	Flags CreateFlags
	// RegionSize is the number of bytes the arena reserves up front and carves into blocks
	RegionSize int
	// BlockSizes is the ladder of block sizes, largest first, each half of the one before it.
	// metadata.DefaultBlockSizes is used when it is empty.
	BlockSizes []int
	// Strategy picks between splitting larger blocks (the default) and leasing them whole
	Strategy metadata.AllocationStrategy
	// PoolSize is the number of slots a HandlePool holds
	PoolSize int
}

// New creates a new Arena that owns a freshly-allocated region of options.RegionSize bytes
//
// logger - Debug traces and leak reports are written here. slog.Default() is used when nil.
//
// options - Optional parameters: it is valid to leave all the fields blank
func New(logger *slog.Logger, options CreateOptions) (*Arena, error) {
	if logger == nil {
		logger = slog.Default()
	}

	regionSize := options.RegionSize
	if regionSize == 0 {
		regionSize = DefaultRegionSize
	}
	if regionSize < 0 {
		return nil, errors.Newf("arena.CreateOptions.RegionSize must not be negative, but was %d", regionSize)
	}

	strategy := options.Strategy
	if strategy == 0 {
		strategy = metadata.AllocationStrategyMinMemory
	}
	if strategy != metadata.AllocationStrategyMinMemory && strategy != metadata.AllocationStrategyMinTime {
		return nil, errors.Newf("arena.CreateOptions.Strategy must be a single strategy, but was %d", strategy)
	}

	md, err := metadata.NewSizeClassBlockMetadata(options.BlockSizes)
	if err != nil {
		return nil, errors.Wrap(err, "arena.CreateOptions.BlockSizes is invalid")
	}
	md.Init(regionSize)

	if md.UsableSize() == 0 {
		return nil, errors.Newf("a region of %d bytes cannot hold a single block of %d bytes", regionSize, md.BlockSizes()[len(md.BlockSizes())-1])
	}

	arena := &Arena{
		logger:   logger,
		flags:    options.Flags,
		strategy: strategy,
		region:   make([]byte, regionSize),
		metadata: md,
	}
	arena.mutex.UseMutex = options.Flags&CreateExternallySynchronized == 0

	logger.Debug("Arena::New",
		slog.Int("RegionSize", regionSize),
		slog.Int("UsableSize", md.UsableSize()),
		slog.String("Strategy", strategy.String()),
		slog.String("Flags", options.Flags.String()),
	)

	return arena, nil
}
