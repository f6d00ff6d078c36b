package packet

// ReasonCode contains return codes across all MQTT specs
type ReasonCode byte

// nolint: golint                                            // V3.1.1 \  V5.0
const ( ///////////////////////////////////////////////////////    |   \    |
	CodeSuccess                            ReasonCode = 0x00 //    |   \    |
	CodeRefusedUnacceptableProtocolVersion ReasonCode = 0x01 //    |   \    |
	CodeRefusedIdentifierRejected          ReasonCode = 0x02 //    |   \    |
	CodeRefusedServerUnavailable           ReasonCode = 0x03 //    |   \    |
	CodeRefusedBadUsernameOrPassword       ReasonCode = 0x04 //    |   \    |
	CodeRefusedNotAuthorized               ReasonCode = 0x05 // <--|   \    |
	CodeUnspecifiedError                   ReasonCode = 0x80 //        \    |
	CodeMalformedPacket                    ReasonCode = 0x81 //        \    |
	CodeProtocolError                      ReasonCode = 0x82 //        \    |
	CodeNotAuthorized                      ReasonCode = 0x87 //        \    |
	CodeServerBusy                         ReasonCode = 0x89 //        \    |
	CodeServerShuttingDown                 ReasonCode = 0x8B //        \    |
	CodeKeepAliveTimeout                   ReasonCode = 0x8D //        \    |
	CodeSessionTakenOver                   ReasonCode = 0x8E //        \    |
	CodeInvalidTopicFilter                 ReasonCode = 0x8F //        \    |
	CodeInvalidTopicName                   ReasonCode = 0x90 //        \    |
	CodePacketIDInUse                      ReasonCode = 0x91 //        \    |
	CodePacketIDNotFound                   ReasonCode = 0x92 //        \    |
	CodeReceiveMaximumExceeded             ReasonCode = 0x93 //        \    |
	CodeQuotaExceeded                      ReasonCode = 0x97 //        \    |
	CodeAdministrativeAction               ReasonCode = 0x98 //        \ <--|
)

var codeDescMap = map[ReasonCode]string{
	CodeSuccess:                            "Operation success",
	CodeRefusedUnacceptableProtocolVersion: "The Server does not support the level of the MQTT protocol requested by the Client",
	CodeRefusedIdentifierRejected:          "The Client identifier is not allowed",
	CodeRefusedServerUnavailable:           "The Network Connection has been made but the MQTT service is unavailable",
	CodeRefusedBadUsernameOrPassword:       "The data in the user name or password is malformed",
	CodeRefusedNotAuthorized:               "The Client is not authorized to connect",
	CodeUnspecifiedError:                   "Unspecified error",
	CodeMalformedPacket:                    "Malformed Packet",
	CodeProtocolError:                      "Protocol Error",
	CodeNotAuthorized:                      "Not authorized",
	CodeServerBusy:                         "Server busy",
	CodeServerShuttingDown:                 "Server shutting down",
	CodeKeepAliveTimeout:                   "Keep Alive timeout",
	CodeSessionTakenOver:                   "Session taken over",
	CodeInvalidTopicFilter:                 "Topic Filter invalid",
	CodeInvalidTopicName:                   "Topic Name invalid",
	CodePacketIDInUse:                      "Packet Identifier in use",
	CodePacketIDNotFound:                   "Packet Identifier not found",
	CodeReceiveMaximumExceeded:             "Receive Maximum exceeded",
	CodeQuotaExceeded:                      "Quota exceeded",
	CodeAdministrativeAction:               "Administrative action",
}

// Value convert reason code to byte type
func (c ReasonCode) Value() byte {
	return byte(c)
}

// IsValid check either reason code is known
func (c ReasonCode) IsValid() bool {
	_, ok := codeDescMap[c]
	return ok
}

// IsValidV3 check either reason code is valid for MQTT V3.1/V3.1.1 CONNACK or not
func (c ReasonCode) IsValidV3() bool {
	return c <= CodeRefusedNotAuthorized
}

// Error returns the description of the ReturnCode
func (c ReasonCode) Error() string {
	if s, ok := codeDescMap[c]; ok {
		return s
	}

	return "Unknown error"
}

// ConnAckV3 maps any reason code onto the V3.1.1 CONNACK return code space
func (c ReasonCode) ConnAckV3() ReasonCode {
	switch {
	case c.IsValidV3():
		return c
	case c == CodeNotAuthorized:
		return CodeRefusedNotAuthorized
	default:
		return CodeRefusedServerUnavailable
	}
}
