package movetypes

import "github.com/holiman/uint256"

// InputKind tags the variants of Input.
type InputKind uint8

const (
	InputPure InputKind = iota
	InputOwned
	InputShared
	InputImmutable
	InputReceiving
)

// Input is one entry of a transaction's ordered input pool.
// Exactly the fields relevant to Kind are populated.
type Input struct {
	Kind InputKind

	// Pure
	PureBytes []byte

	// Owned / Immutable / Receiving
	ID      AccountAddress
	Version uint64
	Digest  string

	// Shared
	InitialVersion uint64
	Mutable        bool
}

// CommandKind tags the variants of Command.
type CommandKind uint8

const (
	CommandMoveCall CommandKind = iota
	CommandSplitCoins
	CommandMergeCoins
	CommandTransferObjects
	CommandMakeMoveVec
	CommandPublish
	CommandUpgrade
)

// ArgKind tags the variants of Arg, a reference to an input, a previous
// command's result, or the implicit gas coin.
type ArgKind uint8

const (
	ArgInput ArgKind = iota
	ArgResult
	ArgNestedResult
	ArgGasCoin
)

// Arg resolves, at execution time, to one of: the i-th input, the sole
// result of a previous command, the j-th result of a previous command, or
// the implicit gas coin.
type Arg struct {
	Kind ArgKind
	// Input / Result: Index is the input index or command index.
	Index int
	// NestedResult: CmdIndex/ResultIndex address the j-th return of the
	// i-th command.
	CmdIndex    int
	ResultIndex int
}

// Command is one ordered step of a programmable transaction.
type Command struct {
	Kind CommandKind

	// MoveCall
	Package      AccountAddress
	ModuleName   string
	FunctionName string
	TypeArgs     []TypeTag
	Args         []Arg

	// SplitCoins: Args[0] is the coin, SplitAmounts are pure-value args.
	SplitAmounts []Arg

	// MergeCoins: Args[0] destination, Args[1:] sources.
	// TransferObjects: Args[:len-1] objects, Args[len-1] recipient.
	// MakeMoveVec: ElementType plus Args as elements.
	ElementType TypeTag

	// Publish / Upgrade
	PublishModules  []Module
	PublishDeps     []AccountAddress
	UpgradeTicket   Arg
	UpgradePackage  AccountAddress
}

// TransactionRecord is the programmable transaction being replayed, plus the
// authoritative on-chain effects it produced.
type TransactionRecord struct {
	Digest      string
	Sender      AccountAddress
	GasBudget   uint64
	GasPrice    uint64
	TimestampMs uint64
	Checkpoint  uint64

	Inputs   []Input
	Commands []Command

	// Dependencies restores the set of prior transaction digests this
	// transaction's shared-object versions derive from. Diagnostic only;
	// replay remains strictly per-transaction.
	Dependencies []string

	Effects Effects
}

// GasSummary mirrors the on-chain gas accounting block, using uint256 for
// the same fixed-width arithmetic normally applied to wei-denominated
// values.
type GasSummary struct {
	ComputationCost         *uint256.Int
	StorageCost             *uint256.Int
	StorageRebate           *uint256.Int
	NonRefundableStorageFee *uint256.Int
}
