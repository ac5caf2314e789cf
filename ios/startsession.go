package ios

import log "github.com/sirupsen/logrus"

type startSessionRequest struct {
	Label           string
	ProtocolVersion string
	Request         string
	HostID          string
	SystemBUID      string
}

// StartSessionResponse is the device reply to a StartSession request.
type StartSessionResponse struct {
	EnableSessionSSL bool
	Request          string
	SessionID        string
}

type stopSessionRequest struct {
	Label     string
	Request   string
	SessionID string
}

// StartSession starts a lockdown session for the host of pairRecord and switches the connection
// to TLS when the device asks for it, which it practically always does.
func (lockDownConn *LockDownConnection) StartSession(pairRecord PairRecord) (StartSessionResponse, error) {
	req := startSessionRequest{
		Label:           lockdownLabel,
		ProtocolVersion: "2",
		Request:         "StartSession",
		HostID:          pairRecord.HostID,
		SystemBUID:      pairRecord.SystemBUID,
	}
	var response StartSessionResponse
	if err := lockDownConn.roundTrip("StartSession", req, &response); err != nil {
		return StartSessionResponse{}, err
	}
	if response.EnableSessionSSL {
		if err := lockDownConn.deviceConnection.EnableSessionSsl(pairRecord); err != nil {
			return StartSessionResponse{}, err
		}
	}
	// only a session that made it through the TLS upgrade needs a StopSession
	lockDownConn.sessionID = response.SessionID
	return response, nil
}

// StopSession ends a running session. It is a no-op without one.
func (lockDownConn *LockDownConnection) StopSession() {
	if lockDownConn.sessionID == "" {
		return
	}
	req := stopSessionRequest{Label: lockdownLabel, Request: "StopSession", SessionID: lockDownConn.sessionID}
	lockDownConn.sessionID = ""
	if err := lockDownConn.roundTrip("StopSession", req, nil); err != nil {
		log.WithField("err", err).Debug("StopSession failed")
	}
}
