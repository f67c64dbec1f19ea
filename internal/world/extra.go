package world

import (
	"fmt"

	"github.com/nrevox/growfleet/internal/protocol"
)

// ExtraKind tags the typed tile-extras variant.
type ExtraKind uint8

const (
	ExtraBasic ExtraKind = iota
	ExtraDoor
	ExtraSign
	ExtraLock
	ExtraSeed
	ExtraMailbox
	ExtraBulletin
	ExtraDice
	ExtraChemicalSource
	ExtraAchievementBlock
	ExtraHeartMonitor
	ExtraDonationBox
	ExtraMannequin
	ExtraBunnyEgg
	ExtraGamePack
	ExtraGameGenerator
	ExtraXenoniteCrystal
	ExtraPhoneBooth
	ExtraCrystal
	ExtraCrimeInProgress
	ExtraDisplayBlock
	ExtraVendingMachine
	ExtraGivingTree
	ExtraCountryFlag
	ExtraWeatherMachine
)

// Clothing slot counts for the two wardrobe-style extras.
const (
	MannequinSlots  = 10
	PhoneBoothSlots = 9
)

// TileExtra is the typed tile-extras variant. Kind selects which field
// group is meaningful; unused groups stay zero.
type TileExtra struct {
	Kind ExtraKind

	// Door, Sign, HeartMonitor, Crystal, CountryFlag, CrimeInProgress
	Label string
	// Mailbox, Bulletin, DonationBox
	Line2 string
	Line3 string

	// Lock
	LockSettings uint8
	OwnerID      uint32
	AccessList   []uint32

	// Seed
	TimePlanted    uint32
	FruitCount     uint8
	ReadyToHarvest bool

	// Mannequin / PhoneBooth
	Clothing [MannequinSlots]uint16

	// Misc scalar payloads
	Flag  uint8  // Door unknown byte, Dice symbol, GamePack team, AchievementBlock tier, CrimeInProgress activity
	Count uint32 // ChemicalSource time placed, BunnyEgg eggs, DisplayBlock item, GivingTree payload, WeatherMachine settings, AchievementBlock/HeartMonitor user id
	Price int32  // VendingMachine
	Extra uint32 // Sign end marker, VendingMachine item id, GivingTree harvest aux
}

// Basic reports the degenerate case.
func (e *TileExtra) Basic() bool {
	return e.Kind == ExtraBasic
}

// Item action types as the catalog encodes them. The lookup table below
// maps these server-side codes onto the structural extras cases; codes
// not listed parse as the basic case and consume no bytes.
const (
	ActionFist               = 0
	ActionWrench             = 1
	ActionDoor               = 2
	ActionLock               = 3
	ActionGems               = 4
	ActionTreasure           = 5
	ActionDeadly             = 6
	ActionTrampoline         = 7
	ActionConsumable         = 8
	ActionEntrance           = 9
	ActionSign               = 10
	ActionSFXForeground      = 11
	ActionToggleForeground   = 12
	ActionMainDoor           = 13
	ActionPlatform           = 14
	ActionBedrock            = 15
	ActionPain               = 16
	ActionForeground         = 17
	ActionBackground         = 18
	ActionSeed               = 19
	ActionClothes            = 20
	ActionAnimatedForeground = 21
	ActionSFXBackground      = 22
	ActionPortal             = 23
	ActionCheckpoint         = 24
	ActionMusicNote          = 25
	ActionIceCream           = 26
	ActionToggleAnimated     = 27
	ActionToggleBackground   = 28
	ActionDice               = 33
	ActionChemicalSource     = 38
	ActionAchievementBlock   = 40
	ActionWeatherMachine     = 41
	ActionScoreBoard         = 42
	ActionHeartMonitor       = 43
	ActionBulletin           = 45
	ActionDonationBox        = 46
	ActionMannequin          = 47
	ActionToySword           = 48
	ActionGamePack           = 53
	ActionGameGenerator      = 54
	ActionBunnyEgg           = 56
	ActionXenonite           = 58
	ActionPhoneBooth         = 63
	ActionCrystal            = 64
	ActionCrimeInProgress    = 65
	ActionDisplayBlock       = 66
	ActionVendingMachine     = 67
	ActionGivingTree         = 70
	ActionCountryFlag        = 71
)

// actionExtraTable is the fixed action-type → extras-case mapping. Several
// codes deliberately resolve to the basic case; they are parsed but unused.
var actionExtraTable = map[uint8]ExtraKind{
	ActionDoor:             ExtraDoor,
	ActionMainDoor:         ExtraDoor,
	ActionPortal:           ExtraDoor,
	ActionLock:             ExtraLock,
	ActionSign:             ExtraSign,
	ActionSeed:             ExtraSeed,
	ActionDice:             ExtraDice,
	ActionChemicalSource:   ExtraChemicalSource,
	ActionAchievementBlock: ExtraAchievementBlock,
	ActionWeatherMachine:   ExtraWeatherMachine,
	ActionHeartMonitor:     ExtraHeartMonitor,
	ActionBulletin:         ExtraBulletin,
	ActionDonationBox:      ExtraDonationBox,
	ActionMannequin:        ExtraMannequin,
	ActionGamePack:         ExtraGamePack,
	ActionGameGenerator:    ExtraGameGenerator,
	ActionBunnyEgg:         ExtraBunnyEgg,
	ActionXenonite:         ExtraXenoniteCrystal,
	ActionPhoneBooth:       ExtraPhoneBooth,
	ActionCrystal:          ExtraCrystal,
	ActionCrimeInProgress:  ExtraCrimeInProgress,
	ActionDisplayBlock:     ExtraDisplayBlock,
	ActionVendingMachine:   ExtraVendingMachine,
	ActionGivingTree:       ExtraGivingTree,
	ActionCountryFlag:      ExtraCountryFlag,
	ActionScoreBoard:       ExtraBasic,
	ActionCheckpoint:       ExtraBasic,
	ActionMusicNote:        ExtraBasic,
	ActionIceCream:         ExtraBasic,
	ActionToySword:         ExtraBasic,
	// Mailbox shares the bulletin-style three-line layout but keeps its
	// own case so callers can tell them apart.
	ActionMailbox: ExtraMailbox,
}

// ActionMailbox sits outside the contiguous ranges above.
const ActionMailbox = 36

// ExtraKindForAction resolves an action type; unknown codes are basic.
func ExtraKindForAction(action uint8) ExtraKind {
	if kind, ok := actionExtraTable[action]; ok {
		return kind
	}
	return ExtraBasic
}

// ParseExtra reads the extras bytes for the given action type from r.
// The parser is total on server-produced sequences; a short read is an
// error and the caller drops the packet.
func ParseExtra(r *protocol.Reader, action uint8) (TileExtra, error) {
	kind := ExtraKindForAction(action)
	e := TileExtra{Kind: kind}
	var err error

	switch kind {
	case ExtraBasic:
		// No bytes.

	case ExtraDoor:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("door label: %w", err)
		}
		if e.Flag, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("door flag: %w", err)
		}

	case ExtraSign:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("sign text: %w", err)
		}
		if e.Extra, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("sign terminator: %w", err)
		}

	case ExtraLock:
		if e.LockSettings, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("lock settings: %w", err)
		}
		if e.OwnerID, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("lock owner: %w", err)
		}
		var n uint32
		if n, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("lock acl count: %w", err)
		}
		if int(n) > r.Remaining()/4 {
			return e, fmt.Errorf("lock acl count %d exceeds remaining bytes", n)
		}
		e.AccessList = make([]uint32, n)
		for i := range e.AccessList {
			if e.AccessList[i], err = r.ReadUint32(); err != nil {
				return e, fmt.Errorf("lock acl entry %d: %w", i, err)
			}
		}

	case ExtraSeed:
		if e.TimePlanted, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("seed timer: %w", err)
		}
		if e.FruitCount, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("seed fruit count: %w", err)
		}
		e.ReadyToHarvest = e.FruitCount > 0

	case ExtraMailbox, ExtraBulletin, ExtraDonationBox:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("board line 1: %w", err)
		}
		if e.Line2, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("board line 2: %w", err)
		}
		if e.Line3, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("board line 3: %w", err)
		}
		if e.Flag, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("board flag: %w", err)
		}

	case ExtraDice, ExtraGamePack:
		if e.Flag, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("byte payload: %w", err)
		}

	case ExtraChemicalSource, ExtraBunnyEgg, ExtraDisplayBlock, ExtraWeatherMachine:
		if e.Count, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("u32 payload: %w", err)
		}

	case ExtraAchievementBlock:
		if e.Count, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("achievement user: %w", err)
		}
		if e.Flag, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("achievement tier: %w", err)
		}

	case ExtraHeartMonitor:
		if e.Count, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("monitor user: %w", err)
		}
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("monitor name: %w", err)
		}

	case ExtraMannequin:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("mannequin label: %w", err)
		}
		if e.Flag, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("mannequin flag: %w", err)
		}
		for i := 0; i < MannequinSlots; i++ {
			if e.Clothing[i], err = r.ReadUint16(); err != nil {
				return e, fmt.Errorf("mannequin slot %d: %w", i, err)
			}
		}

	case ExtraPhoneBooth:
		for i := 0; i < PhoneBoothSlots; i++ {
			if e.Clothing[i], err = r.ReadUint16(); err != nil {
				return e, fmt.Errorf("booth slot %d: %w", i, err)
			}
		}

	case ExtraGameGenerator, ExtraXenoniteCrystal:
		// Marker cases: typed but empty on the wire.

	case ExtraCrystal:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("crystal data: %w", err)
		}

	case ExtraCrimeInProgress:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("crime name: %w", err)
		}
		if e.Count, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("crime payload: %w", err)
		}
		if e.Flag, err = r.ReadByte(); err != nil {
			return e, fmt.Errorf("crime activity: %w", err)
		}

	case ExtraVendingMachine:
		if e.Extra, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("vending item: %w", err)
		}
		if e.Price, err = r.ReadInt32(); err != nil {
			return e, fmt.Errorf("vending price: %w", err)
		}

	case ExtraGivingTree:
		var harvest uint16
		if harvest, err = r.ReadUint16(); err != nil {
			return e, fmt.Errorf("tree harvest: %w", err)
		}
		e.Extra = uint32(harvest)
		if e.Count, err = r.ReadUint32(); err != nil {
			return e, fmt.Errorf("tree payload: %w", err)
		}

	case ExtraCountryFlag:
		if e.Label, err = r.ReadString16(); err != nil {
			return e, fmt.Errorf("flag country: %w", err)
		}
	}

	return e, nil
}

// MarshalExtra renders e into w, inverse of ParseExtra. Used by the
// snapshot writer and by tests building server-shaped payloads.
func MarshalExtra(w *protocol.Writer, e *TileExtra) {
	switch e.Kind {
	case ExtraBasic, ExtraGameGenerator, ExtraXenoniteCrystal:

	case ExtraDoor:
		w.WriteString16(e.Label)
		w.WriteByte(e.Flag)

	case ExtraSign:
		w.WriteString16(e.Label)
		w.WriteUint32(e.Extra)

	case ExtraLock:
		w.WriteByte(e.LockSettings)
		w.WriteUint32(e.OwnerID)
		w.WriteUint32(uint32(len(e.AccessList)))
		for _, id := range e.AccessList {
			w.WriteUint32(id)
		}

	case ExtraSeed:
		w.WriteUint32(e.TimePlanted)
		w.WriteByte(e.FruitCount)

	case ExtraMailbox, ExtraBulletin, ExtraDonationBox:
		w.WriteString16(e.Label)
		w.WriteString16(e.Line2)
		w.WriteString16(e.Line3)
		w.WriteByte(e.Flag)

	case ExtraDice, ExtraGamePack:
		w.WriteByte(e.Flag)

	case ExtraChemicalSource, ExtraBunnyEgg, ExtraDisplayBlock, ExtraWeatherMachine:
		w.WriteUint32(e.Count)

	case ExtraAchievementBlock:
		w.WriteUint32(e.Count)
		w.WriteByte(e.Flag)

	case ExtraHeartMonitor:
		w.WriteUint32(e.Count)
		w.WriteString16(e.Label)

	case ExtraMannequin:
		w.WriteString16(e.Label)
		w.WriteByte(e.Flag)
		for i := 0; i < MannequinSlots; i++ {
			w.WriteUint16(e.Clothing[i])
		}

	case ExtraPhoneBooth:
		for i := 0; i < PhoneBoothSlots; i++ {
			w.WriteUint16(e.Clothing[i])
		}

	case ExtraCrystal:
		w.WriteString16(e.Label)

	case ExtraCrimeInProgress:
		w.WriteString16(e.Label)
		w.WriteUint32(e.Count)
		w.WriteByte(e.Flag)

	case ExtraVendingMachine:
		w.WriteUint32(e.Extra)
		w.WriteInt32(e.Price)

	case ExtraGivingTree:
		w.WriteUint16(uint16(e.Extra))
		w.WriteUint32(e.Count)

	case ExtraCountryFlag:
		w.WriteString16(e.Label)
	}
}
