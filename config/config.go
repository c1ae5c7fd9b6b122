// Package config loads process-execution-substrate tunables from TOML,
// grounded in dh-cli's internal/config/config.go (a struct decoded with
// go-toml/v2, defaults filled in before Decode so a partial file is
// valid). The IPC limits named here mirror the original's SHMMNI/SHMMAX/
// etc. #define constants (original_source/kern/ipc.c), made runtime
// configuration instead of compile-time constants.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Limits bounds the resource consumption of the VM and IPC subsystems.
type Limits struct {
	VM  VMLimits  `toml:"vm"`
	Shm ShmLimits `toml:"shm"`
	Sem SemLimits `toml:"sem"`
	Msg MsgLimits `toml:"msg"`
}

type VMLimits struct {
	PhysPages int `toml:"phys_pages"`
}

type ShmLimits struct {
	Min  uintptr `toml:"min"`
	Max  uintptr `toml:"max"`
	All  uintptr `toml:"all"`
	MNI  int     `toml:"mni"`
}

type SemLimits struct {
	MNI  int `toml:"mni"`
	MSL  int `toml:"msl"` // max semaphores per set
	MNS  int `toml:"mns"` // max semaphores system-wide
	OPM  int `toml:"opm"` // max ops per semop call
	VMX  int `toml:"vmx"` // max semaphore value
}

type MsgLimits struct {
	MNI          int `toml:"mni"`
	MaxMsgSize   int `toml:"max_msg_size"`
	DefaultQBytes int `toml:"default_qbytes"`
	AdminMaxQBytes int `toml:"admin_max_qbytes"`
}

// Default mirrors the original's constants (SHMMIN=1, SHMMAX=32MB,
// SHMALL=2^21 pages, SHMMNI=128, SEMMNI=128, SEMMSL=250, SEMMNS=32000,
// SEMOPM=32, SEMVMX=32767, MSGMNI=128, MSGMAX=8192, MSGMNB=16384).
func Default() Limits {
	const pageSize = 4096
	return Limits{
		VM: VMLimits{PhysPages: 1 << 16},
		Shm: ShmLimits{
			Min: 1,
			Max: 32 * 1024 * 1024,
			All: (1 << 21) * pageSize,
			MNI: 128,
		},
		Sem: SemLimits{
			MNI: 128,
			MSL: 250,
			MNS: 32000,
			OPM: 32,
			VMX: 32767,
		},
		Msg: MsgLimits{
			MNI:            128,
			MaxMsgSize:     8192,
			DefaultQBytes:  16384,
			AdminMaxQBytes: 1 << 20,
		},
	}
}

// Load reads a TOML limits file, starting from Default() so an omitted
// section keeps its default rather than zeroing out.
func Load(path string) (Limits, error) {
	lim := Default()
	if path == "" {
		return lim, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return lim, err
	}
	if err := toml.Unmarshal(data, &lim); err != nil {
		return lim, err
	}
	return lim, nil
}
