package rsyncopts

import (
	"fmt"
	"strconv"
	"strings"
)

// argInfo values for a poptOption's Arg field, a practical subset of
// popt(3)'s POPT_ARG_* constants: whether an option takes no value, a
// string, an integer, or stores a fixed Val into an *int (POPT_ARG_VAL) or
// ORs it into one (POPT_BIT_SET) with no argument consumed at all.
const (
	POPT_ARG_NONE = iota
	POPT_ARG_STRING
	POPT_ARG_INT
	POPT_ARG_VAL
	POPT_BIT_SET
)

// Errno values for PoptError, mirroring the handful of popt(3) error
// codes this implementation's callers actually switch on.
const (
	POPT_ERROR_BADOPT    = -10
	POPT_ERROR_NOARG     = -11
	POPT_ERROR_BADNUMBER = -12
)

// poptOption is one entry of a command's option table: longName (without
// leading "--"), shortName (a single letter, without leading "-", or
// empty), how it's parsed, the variable it stores into (*int or *string,
// or nil when the special-case switch in ParseArguments handles it), and
// the value returned by poptGetNextOpt when it fires.
type poptOption struct {
	longName  string
	shortName string
	argInfo   int
	arg       any
	val       int
}

// PoptError reports a command-line parsing failure. Option carries the
// exact flag text (e.g. "--x.dont_restrict") so callers can pattern
// match on option families the way maincmd.Main does for --x. flags.
type PoptError struct {
	Option     string
	Errno      int
	DaemonMode bool
}

func (e *PoptError) Error() string {
	return fmt.Sprintf("%s: invalid option", e.Option)
}

// Context is what ParseArguments returns: the parsed Options plus
// whatever non-option arguments (source/dest paths) were left over, the
// same popt(3) convention rsync(1)'s own CLI follows.
type Context struct {
	Options       *Options
	RemainingArgs []string

	table []poptOption
	args  []string

	// pendingShort holds the unconsumed remainder of a bundled short
	// option cluster (e.g. "vz" left over after "-avz" resolved "a")
	// between calls to poptGetNextOpt.
	pendingShort string
	lastOptArg   string
}

func findLong(table []poptOption, name string) (poptOption, bool) {
	for _, o := range table {
		if o.longName == name {
			return o, true
		}
	}
	return poptOption{}, false
}

func findShort(table []poptOption, name byte) (poptOption, bool) {
	for _, o := range table {
		if o.shortName == string(name) {
			return o, true
		}
	}
	return poptOption{}, false
}

func takesValue(argInfo int) bool {
	return argInfo == POPT_ARG_STRING || argInfo == POPT_ARG_INT
}

// apply stores a parsed option's value into its bound variable and
// reports what poptGetNextOpt should return: for POPT_ARG_VAL and
// POPT_BIT_SET, Val is the value stored, so they return 0; for the other
// kinds a nonzero Val surfaces to the caller's switch. A return of 0 means
// the option was fully handled by auto-storage (the common case for
// boolean toggles), so poptGetNextOpt keeps looping instead of bothering
// the caller with a meaningless 0.
func (pc *Context) apply(opt poptOption, value string, hasValue bool) (int, error) {
	switch opt.argInfo {
	case POPT_ARG_NONE:
		if p, ok := opt.arg.(*int); ok {
			*p = 1
		}
	case POPT_ARG_VAL:
		if p, ok := opt.arg.(*int); ok {
			*p = opt.val
		}
		return 0, nil
	case POPT_BIT_SET:
		if p, ok := opt.arg.(*int); ok {
			*p |= opt.val
		}
		return 0, nil
	case POPT_ARG_STRING:
		if !hasValue {
			return 0, &PoptError{Option: "--" + opt.longName, Errno: POPT_ERROR_NOARG}
		}
		pc.lastOptArg = value
		if p, ok := opt.arg.(*string); ok {
			*p = value
		}
	case POPT_ARG_INT:
		if !hasValue {
			return 0, &PoptError{Option: "--" + opt.longName, Errno: POPT_ERROR_NOARG}
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return 0, &PoptError{Option: "--" + opt.longName, Errno: POPT_ERROR_BADNUMBER}
		}
		pc.lastOptArg = value
		if p, ok := opt.arg.(*int); ok {
			*p = n
		}
	}
	return opt.val, nil
}

func (pc *Context) popArg() (string, bool) {
	if len(pc.args) == 0 {
		return "", false
	}
	v := pc.args[0]
	pc.args = pc.args[1:]
	return v, true
}

func (pc *Context) handleLong(tok string) (int, error) {
	name := tok
	var inlineValue string
	hasInline := false
	if idx := strings.IndexByte(tok, '='); idx >= 0 {
		name = tok[:idx]
		inlineValue = tok[idx+1:]
		hasInline = true
	}
	opt, ok := findLong(pc.table, name)
	if !ok {
		return 0, &PoptError{Option: "--" + name, Errno: POPT_ERROR_BADOPT}
	}
	if !takesValue(opt.argInfo) {
		return pc.apply(opt, "", false)
	}
	if hasInline {
		return pc.apply(opt, inlineValue, true)
	}
	value, ok := pc.popArg()
	return pc.apply(opt, value, ok)
}

// handleShortCluster resolves as much of a bundled short-option run
// ("-avz") as it can in one call, stashing any remainder in
// pc.pendingShort when an option with a nonzero Val needs to surface
// before its neighbors are processed.
func (pc *Context) handleShortCluster(cluster string) (int, error) {
	for i := 0; i < len(cluster); i++ {
		opt, ok := findShort(pc.table, cluster[i])
		if !ok {
			return 0, &PoptError{Option: "-" + string(cluster[i]), Errno: POPT_ERROR_BADOPT}
		}
		if !takesValue(opt.argInfo) {
			ret, err := pc.apply(opt, "", false)
			if err != nil {
				return 0, err
			}
			if ret != 0 {
				pc.pendingShort = cluster[i+1:]
				return ret, nil
			}
			continue
		}
		// An option taking a value ends the cluster: whatever follows is
		// either the attached value ("-e ssh" vs "-essh") or, if nothing
		// follows, the next argv element.
		if i+1 < len(cluster) {
			return pc.apply(opt, cluster[i+1:], true)
		}
		value, hasValue := pc.popArg()
		return pc.apply(opt, value, hasValue)
	}
	return 0, nil
}

// poptGetNextOpt returns the next option's Val (for table entries with no
// bound variable, its short/long rune), or -1 once every argument has
// been consumed. Non-option arguments accumulate into RemainingArgs.
func (pc *Context) poptGetNextOpt() (int, error) {
	for {
		if pc.pendingShort != "" {
			cluster := pc.pendingShort
			pc.pendingShort = ""
			ret, err := pc.handleShortCluster(cluster)
			if err != nil {
				return 0, err
			}
			if ret != 0 || pc.pendingShort != "" {
				return ret, nil
			}
			continue
		}

		if len(pc.args) == 0 {
			return -1, nil
		}
		tok := pc.args[0]

		if tok == "--" {
			pc.args = pc.args[1:]
			pc.RemainingArgs = append(pc.RemainingArgs, pc.args...)
			pc.args = nil
			return -1, nil
		}

		if len(tok) < 2 || tok[0] != '-' {
			pc.RemainingArgs = append(pc.RemainingArgs, tok)
			pc.args = pc.args[1:]
			continue
		}

		pc.args = pc.args[1:]

		if strings.HasPrefix(tok, "--") {
			ret, err := pc.handleLong(tok[2:])
			if err != nil {
				return 0, err
			}
			if ret != 0 {
				return ret, nil
			}
			continue
		}

		ret, err := pc.handleShortCluster(tok[1:])
		if err != nil {
			return 0, err
		}
		if ret != 0 || pc.pendingShort != "" {
			return ret, nil
		}
	}
}

// poptGetOptArg returns the string consumed by the most recently returned
// POPT_ARG_STRING/POPT_ARG_INT option. Table entries like --info and
// --debug deliberately leave Arg nil so the special-case switch in
// ParseArguments can post-process the raw text itself instead of having
// it auto-stored.
func (pc *Context) poptGetOptArg() string {
	return pc.lastOptArg
}
