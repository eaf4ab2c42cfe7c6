package fetch

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/tordoctor/doctor/internal/issue"
	"github.com/tordoctor/doctor/internal/types"
)

// LegacyCheck verifies that old authority addresses still answer as the
// authority that used to live there.
type LegacyCheck struct {
	logger    *zap.Logger
	getter    Getter
	addresses []types.LegacyAddress
}

// NewLegacyCheck creates a LegacyCheck over the given addresses.
func NewLegacyCheck(logger *zap.Logger, getter Getter, addresses []types.LegacyAddress) *LegacyCheck {
	return &LegacyCheck{
		logger:    logger.Named("legacy-check"),
		getter:    getter,
		addresses: append([]types.LegacyAddress(nil), addresses...),
	}
}

// Check downloads each address's own server descriptor and reports a WARNING
// when it cannot be fetched or names another relay.
func (p *LegacyCheck) Check(ctx context.Context) []issue.Issue {
	var issues []issue.Issue
	for _, la := range p.addresses {
		err := p.check(ctx, la)
		if err == nil {
			continue
		}
		var fe *Error
		if errors.As(err, &fe) {
			err = fe.Err
		}
		p.logger.Warn("Old authority address unavailable",
			zap.String("authority", la.Nickname),
			zap.String("address", la.Address),
			zap.Error(err),
		)
		issues = append(issues, issue.MustNew(types.SeverityWarning, issue.LegacyAddressUnavailable, issue.Params{
			"authority": la.Nickname,
			"address":   la.Address,
			"error":     err.Error(),
		}, la.Nickname))
	}
	return issues
}

func (p *LegacyCheck) check(ctx context.Context, la types.LegacyAddress) error {
	a := types.Authority{Nickname: la.Nickname, Address: la.Address, DirPort: la.DirPort}
	resp, err := p.getter.Get(ctx, a, OwnDescriptor)
	if err != nil {
		return err
	}
	nickname, err := descriptorNickname(resp.Body)
	if err != nil {
		return err
	}
	if nickname != la.Nickname {
		return fmt.Errorf("unexpected nickname at %s's old address (%s)", la.Nickname, nickname)
	}
	return nil
}

// descriptorNickname returns the nickname of the descriptor's router line.
func descriptorNickname(body []byte) (string, error) {
	sc := bufio.NewScanner(bytes.NewReader(body))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) >= 2 && fields[0] == "router" {
			return fields[1], nil
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	return "", errors.New("server descriptor has no router line")
}
