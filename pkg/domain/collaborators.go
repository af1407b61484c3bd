package domain

// MemoryManager is the sibling-subsystem contract for per-type memory
// channels. The registry calls it when a type is registered, migrated, or
// cleared; a nil manager disables channel allocation entirely.
type MemoryManager interface {
	// AllocateTypeChannel reserves a channel slot for a newly registered
	// type and returns its index, or a negative index with an error.
	AllocateTypeChannel(id TypeID, name string) (int32, error)
	// MigrateTypeData moves allocated instance data between schema
	// versions. Only called for types holding an allocated channel.
	MigrateTypeData(id TypeID, channel int32, fromVersion, toVersion uint32) error
	// ReleaseTypeChannel frees a channel during Clear or shutdown.
	ReleaseTypeChannel(id TypeID, channel int32) error
}

// CompressionProfile names the codec and level used when packing data owned
// by a registered type.
type CompressionProfile struct {
	Codec string `yaml:"codec"`
	Level int    `yaml:"level"`
}

// CompressionRegistrar receives per-type compression settings as types are
// registered. A nil registrar disables the hook.
type CompressionRegistrar interface {
	RegisterTypeCompression(id TypeID, profile CompressionProfile) error
}
