package layers

import (
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// locks name coarse resources. they are static declarations used by the
// scheduler for serialization, not runtime mutex primitives.
type Lock string

const (
	LockHostDocument Lock = "host.document"
	LockDocumentModel Lock = "app.document"
	LockAppState Lock = "app.state"
	LockTool Lock = "app.tool"
	LockShortcut Lock = "app.shortcut"
	LockPolicy Lock = "app.policy"
)

// CommandDescriptor declares what a command touches. The write set must
// cover everything the command or any command it transfers control to
// will write. This is checked once at composition time; a missing
// declaration is a programming error, not a runtime condition.
type CommandDescriptor struct {
	Operation string
	Reads []Lock
	Writes []Lock
	Transfers []string
	Modal bool
}

func (self *CommandDescriptor) WritesOverlap(other *CommandDescriptor) bool {
	for _, lock := range self.Writes {
		if slices.Contains(other.Writes, lock) {
			return true
		}
	}
	return false
}

type CommandRegistry struct {
	mutex sync.Mutex
	descriptors map[string]*CommandDescriptor
}

func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{
		descriptors: map[string]*CommandDescriptor{},
	}
}

func (self *CommandRegistry) Register(descriptor *CommandDescriptor) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if descriptor.Operation == "" {
		return &ValidationError{Field: "operation", Message: "operation name required"}
	}
	if _, ok := self.descriptors[descriptor.Operation]; ok {
		return &ValidationError{
			Field: "operation",
			Message: fmt.Sprintf("duplicate operation %q", descriptor.Operation),
		}
	}
	self.descriptors[descriptor.Operation] = descriptor
	return nil
}

func (self *CommandRegistry) MustRegister(descriptor *CommandDescriptor) {
	if err := self.Register(descriptor); err != nil {
		panic(err)
	}
}

func (self *CommandRegistry) Descriptor(operation string) *CommandDescriptor {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	return self.descriptors[operation]
}

func (self *CommandRegistry) Operations() []string {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	operations := maps.Keys(self.descriptors)
	slices.Sort(operations)
	return operations
}

// Validate enforces the static transfer rule: every transferred
// operation must exist, and its lock sets must be covered by the
// declaring command. Covered write sets keep the scheduler
// deadlock-free by construction, since a running command never needs
// to acquire locks it does not already hold.
func (self *CommandRegistry) Validate() error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, descriptor := range self.descriptors {
		for _, operation := range descriptor.Transfers {
			transferred, ok := self.descriptors[operation]
			if !ok {
				return &InvariantViolation{
					Message: fmt.Sprintf("%q transfers to unregistered operation %q", descriptor.Operation, operation),
				}
			}
			for _, lock := range transferred.Writes {
				if !slices.Contains(descriptor.Writes, lock) {
					return &InvariantViolation{
						Message: fmt.Sprintf(
							"%q transfers to %q but does not declare write lock %q",
							descriptor.Operation,
							operation,
							lock,
						),
					}
				}
			}
			for _, lock := range transferred.Reads {
				if !slices.Contains(descriptor.Reads, lock) && !slices.Contains(descriptor.Writes, lock) {
					return &InvariantViolation{
						Message: fmt.Sprintf(
							"%q transfers to %q but does not declare read lock %q",
							descriptor.Operation,
							operation,
							lock,
						),
					}
				}
			}
		}
	}
	return nil
}

func (self *CommandRegistry) MustValidate() {
	if err := self.Validate(); err != nil {
		panic(err)
	}
}
