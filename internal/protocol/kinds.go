package protocol

// MessageKind is the top-level u32 tag prefixed to every payload on the
// reliable channel.
type MessageKind uint32

const (
	MessageUnknown MessageKind = iota
	MessageServerHello
	MessageGenericText
	MessageGameMessage
	MessageGamePacket
	MessageError
	MessageTrack
	MessageClientLogRequest
	MessageClientLogResponse
	MessageMax
)

func (k MessageKind) String() string {
	switch k {
	case MessageUnknown:
		return "UNKNOWN"
	case MessageServerHello:
		return "SERVER_HELLO"
	case MessageGenericText:
		return "GENERIC_TEXT"
	case MessageGameMessage:
		return "GAME_MESSAGE"
	case MessageGamePacket:
		return "GAME_PACKET"
	case MessageError:
		return "ERROR"
	case MessageTrack:
		return "TRACK"
	case MessageClientLogRequest:
		return "CLIENT_LOG_REQUEST"
	case MessageClientLogResponse:
		return "CLIENT_LOG_RESPONSE"
	case MessageMax:
		return "MAX"
	default:
		return "INVALID"
	}
}

// PacketType is the inner type byte of a game packet (header field 0).
// Unknown values are ignored by the dispatcher.
type PacketType uint8

const (
	PacketState PacketType = iota
	PacketCallFunction
	PacketUpdateStatus
	PacketTileChangeRequest
	PacketSendMapData
	PacketSendTileUpdateData
	PacketSendTileUpdateDataMultiple
	PacketTileActivateRequest
	PacketTileApplyDamage
	PacketSendInventoryState
	PacketItemActivateRequest
	PacketItemActivateObjectRequest
	PacketSendTileTreeState
	PacketModifyItemInventory
	PacketItemChangeObject
	PacketSendLock
	PacketSendItemDatabaseData
	PacketSendParticleEffect
	PacketSetIconState
	PacketItemEffect
	PacketSetCharacterState
	PacketPingReply
	PacketPingRequest
	PacketGotPunched
	PacketAppCheckResponse
	PacketAppIntegrityFail
	PacketDisconnect
	PacketBattleJoin
	PacketBattleEvent
	PacketUseDoor
	PacketSendParental
	PacketGoneFishin
	PacketSteam
	PacketPetBattle
	PacketNpc
	PacketSpecial
	PacketSendParticleEffectV2
	PacketActivateArrowToItem
	PacketSelectTileIndex
	PacketSendPlayerTributeData
	PacketFTUESetItemToQuickInventory
	PacketPVENpc
	PacketPVPCardBattle
	PacketPVEApplyPlayerDamage
	PacketPVENPCPositionUpdate
	PacketSetExtraMods
	PacketOnStepTileMod
)

var packetTypeNames = [...]string{
	"STATE", "CALL_FUNCTION", "UPDATE_STATUS", "TILE_CHANGE_REQUEST",
	"SEND_MAP_DATA", "SEND_TILE_UPDATE_DATA", "SEND_TILE_UPDATE_DATA_MULTIPLE",
	"TILE_ACTIVATE_REQUEST", "TILE_APPLY_DAMAGE", "SEND_INVENTORY_STATE",
	"ITEM_ACTIVATE_REQUEST", "ITEM_ACTIVATE_OBJECT_REQUEST",
	"SEND_TILE_TREE_STATE", "MODIFY_ITEM_INVENTORY", "ITEM_CHANGE_OBJECT",
	"SEND_LOCK", "SEND_ITEM_DATABASE_DATA", "SEND_PARTICLE_EFFECT",
	"SET_ICON_STATE", "ITEM_EFFECT", "SET_CHARACTER_STATE", "PING_REPLY",
	"PING_REQUEST", "GOT_PUNCHED", "APP_CHECK_RESPONSE", "APP_INTEGRITY_FAIL",
	"DISCONNECT", "BATTLE_JOIN", "BATTLE_EVENT", "USE_DOOR", "SEND_PARENTAL",
	"GONE_FISHIN", "STEAM", "PET_BATTLE", "NPC", "SPECIAL",
	"SEND_PARTICLE_EFFECT_V2", "ACTIVATE_ARROW_TO_ITEM", "SELECT_TILE_INDEX",
	"SEND_PLAYER_TRIBUTE_DATA", "FTUE_SET_ITEM_TO_QUICK_INVENTORY", "PVE_NPC",
	"PVP_CARD_BATTLE", "PVE_APPLY_PLAYER_DAMAGE", "PVE_NPC_POSITION_UPDATE",
	"SET_EXTRA_MODS", "ON_STEP_TILE_MOD",
}

func (t PacketType) String() string {
	if int(t) < len(packetTypeNames) {
		return packetTypeNames[t]
	}
	return "UNKNOWN"
}
