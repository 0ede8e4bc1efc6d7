package config

type Limits struct {
	// MaxSnapshots bounds each book's history log
	MaxSnapshots int `yaml:"max_snapshots" validate:"required,min=1,max=100000"`
	// MaxConcurrentPushes bounds parallel requests when pushing a book
	MaxConcurrentPushes int `yaml:"max_concurrent_pushes" validate:"required,min=1,max=32"`
}

func DefaultLimits() Limits {
	return Limits{
		MaxSnapshots:        100,
		MaxConcurrentPushes: 4,
	}
}
