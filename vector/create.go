package vector

import (
	"math"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"
	"github.com/memphis242/ccol-sub000/arena"
	"github.com/memphis242/ccol-sub000/internal/utils"
	"github.com/memphis242/ccol-sub000/memutils"
	"golang.org/x/exp/slog"
)

// CreateFlags indicate specific vector behaviors to activate or deactivate
type CreateFlags int32

var createFlagsMapping = utils.NewFlagStringMapping[CreateFlags]()

func (f CreateFlags) Register(str string) {
	createFlagsMapping.Register(f, str)
}
func (f CreateFlags) String() string {
	return createFlagsMapping.FlagsToString(f)
}

const (
	// CreateSecureRemoval zeroes the bytes of every element slot that is vacated by a remove,
	// a split, or a reset, so no data is left behind in spare capacity
	CreateSecureRemoval CreateFlags = 1 << iota
)

func init() {
	CreateSecureRemoval.Register("CreateSecureRemoval")
}

const (
	// DefaultInitialCapacity is the capacity an empty vector grows to on its first insertion,
	// unless MaxCapacity is smaller
	DefaultInitialCapacity int = 10
	// ExpansionFactor is the multiplier applied to capacity when a full vector grows
	ExpansionFactor int = 2
)

// CreateOptions describes a new vector. ElementSize and MaxCapacity are required; everything
// else may be left blank.
type CreateOptions struct {
	// ElementSize is the byte width of every element. It is fixed for the life of the vector.
	ElementSize int
	// InitialCapacity is the number of elements to reserve storage for up front. When it is 0,
	// no storage is reserved until the first insertion.
	InitialCapacity int
	// MaxCapacity is the ceiling capacity can never grow past
	MaxCapacity int
	// InitialLength is the number of elements the vector starts out holding. They are zeroed
	// unless InitialData is provided.
	InitialLength int
	// InitialData, if provided, must be exactly InitialLength*ElementSize bytes and is copied
	// into the new vector's first InitialLength elements
	InitialData []byte

	// Allocator provides the vector's backing storage. memutils.HeapAllocator is used when nil.
	Allocator memutils.Allocator
	// Pool, if provided, supplies the Vector handle itself. The handle is returned to the pool
	// by Free.
	Pool *arena.HandlePool[Vector]

	// Flags indicates specific vector behaviors to activate or deactivate
	Flags CreateFlags
}

func (o CreateOptions) validate() error {
	if o.ElementSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "vector.CreateOptions.ElementSize must be greater than 0, but was %d", o.ElementSize)
	}
	if o.MaxCapacity <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "vector.CreateOptions.MaxCapacity must be greater than 0, but was %d", o.MaxCapacity)
	}
	if o.MaxCapacity > math.MaxInt/o.ElementSize {
		return errors.Wrapf(ErrInvalidConfig, "vector.CreateOptions.MaxCapacity %d of %d-byte elements cannot be addressed", o.MaxCapacity, o.ElementSize)
	}
	if o.InitialCapacity < 0 || o.InitialCapacity > o.MaxCapacity {
		return errors.Wrapf(ErrInvalidConfig, "vector.CreateOptions.InitialCapacity must be between 0 and MaxCapacity %d, but was %d", o.MaxCapacity, o.InitialCapacity)
	}
	if o.InitialLength < 0 || o.InitialLength > o.InitialCapacity {
		return errors.Wrapf(ErrInvalidConfig, "vector.CreateOptions.InitialLength must be between 0 and InitialCapacity %d, but was %d", o.InitialCapacity, o.InitialLength)
	}
	if o.InitialData != nil && len(o.InitialData) != o.InitialLength*o.ElementSize {
		return errors.Wrapf(ErrInvalidConfig, "vector.CreateOptions.InitialData must hold %d bytes, but held %d", o.InitialLength*o.ElementSize, len(o.InitialData))
	}

	return nil
}

// New creates a new Vector
//
// logger - Debug traces are written here. slog.Default() is used when nil.
//
// options - The element size and capacity ceiling of the vector, plus optional parameters
func New(logger *slog.Logger, options CreateOptions) (*Vector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	err := options.validate()
	if err != nil {
		return nil, err
	}

	allocator := options.Allocator
	if allocator == nil {
		allocator = memutils.HeapAllocator{}
	}

	var storage []byte
	if options.InitialCapacity > 0 {
		storage, err = allocator.Allocate(options.InitialCapacity * options.ElementSize)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to reserve storage for %d elements", options.InitialCapacity)
		}
		storage = storage[:options.InitialCapacity*options.ElementSize]
	}

	var v *Vector
	if options.Pool != nil {
		v, err = options.Pool.Dispatch()
		if err != nil {
			err = errors.Wrap(err, "failed to lease a vector handle")
			if storage != nil {
				reclaimErr := allocator.Reclaim(storage, len(storage))
				if reclaimErr != nil {
					err = errors.WithSecondaryError(err, reclaimErr)
				}
			}
			return nil, err
		}
	} else {
		v = &Vector{}
	}

	*v = Vector{
		logger:      logger,
		allocator:   allocator,
		pool:        options.Pool,
		flags:       options.Flags,
		elementSize: options.ElementSize,
		length:      options.InitialLength,
		capacity:    options.InitialCapacity,
		maxCapacity: options.MaxCapacity,
		storage:     storage,
		generation:  nextGeneration(),
	}

	if options.InitialLength > 0 {
		populated := v.storage[:options.InitialLength*options.ElementSize]
		if options.InitialData != nil {
			copy(populated, options.InitialData)
		} else {
			clear(populated)
		}
	}

	logger.Debug("Vector::New",
		slog.Int("ElementSize", options.ElementSize),
		slog.Int("Capacity", options.InitialCapacity),
		slog.Int("MaxCapacity", options.MaxCapacity),
		slog.String("Storage", humanize.IBytes(uint64(len(storage)))),
		slog.String("Flags", options.Flags.String()),
	)
	return v, nil
}

// derive creates an empty vector that shares v's element size, allocator, pool, logger, and
// flags, with storage for exactly capacity elements
func (v *Vector) derive(capacity, maxCapacity int) (*Vector, error) {
	return New(v.logger, CreateOptions{
		ElementSize:     v.elementSize,
		InitialCapacity: capacity,
		MaxCapacity:     maxCapacity,
		Allocator:       v.allocator,
		Pool:            v.pool,
		Flags:           v.flags,
	})
}

// Free reclaims the vector's backing storage and then the vector handle itself. The vector must
// not be used again after Free returns, even if it returns an error.
func (v *Vector) Free() error {
	v.logger.Debug("Vector::Free")

	err := v.releaseStorage()
	if err != nil {
		return err
	}

	if v.pool != nil {
		err = v.pool.Reclaim(v)
		if err != nil {
			return errors.Wrap(err, "failed to return the vector handle to its pool")
		}
	}

	return nil
}
