package proc

import (
	"defs"
	"vm"
)

// Fork creates a child of parent with id childID: a fresh page
// directory whose user half is a copy-on-write clone of parent's
// (vm.VM.CloneUserCOW), a fresh kernel stack, and a register frame
// that is a copy of parent's except for the syscall return value slot
// (eax), which the caller sets to 0 in the child's frame and the
// child's own task ID in the parent's return path -- Fork itself just
// builds the child; wiring the two return values into the two frames
// is usys's job, since that is where the syscall's ABI lives.
func Fork(v *vm.VM, parent *Task, childID TaskID) (*Task, defs.Err_t) {
	child, err := NewTask(v, childID)
	if err != 0 {
		return nil, err
	}
	if err := v.CloneUserCOW(child.PD, parent.PD); err != 0 {
		return nil, err
	}
	childTF := *parent.TF
	child.TF = &childTF
	child.Parent = parent.ID
	return child, 0
}
