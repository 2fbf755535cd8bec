package pipeline

import (
	"github.com/ambrystore/frontend/accountdir"
	"github.com/ambrystore/frontend/cmn"
)

// accountContainerInject implements §4.1's POST account/container
// injection matrix, writing the resolved (account, container) pair into
// ctx's args under ArgTargetAccount/ArgTargetContainer.
func (p *Pipeline) accountContainerInject(ctx *Context) error {
	req := ctx.Request

	if req.Headers.Get(ArgTargetAccount) != "" || req.Headers.Get(ArgTargetContainer) != "" {
		return cmn.NewPipelineError(cmn.ErrBadRequest, "internal target-account/target-container keys must not appear on the wire")
	}

	dir := p.dir
	unknownAcct := dir.UnknownAccount()
	unknownCont := dir.UnknownContainer()

	var acct cmn.Account
	var cont cmn.Container

	switch {
	case req.TargetAccount == nil && req.TargetContainer == nil:
		var err error
		acct, cont, err = injectViaServiceID(dir, req, unknownAcct)
		if err != nil {
			return err
		}

	case req.TargetAccount == nil && req.TargetContainer != nil:
		if *req.TargetContainer == unknownCont.Name {
			return cmn.NewPipelineError(cmn.ErrInvalidContainer, "target-container is the unknown container")
		}
		return cmn.NewPipelineError(cmn.ErrMissingArgs, "target-container given without target-account")

	case *req.TargetAccount == unknownAcct.Name:
		return cmn.NewPipelineError(cmn.ErrInvalidAccount, "target-account is the unknown account")

	default:
		var ok bool
		acct, ok = dir.LookupAccountByName(*req.TargetAccount)
		if !ok {
			return cmn.NewPipelineError(cmn.ErrInvalidAccount, "unknown account: "+*req.TargetAccount)
		}
		if req.TargetContainer == nil {
			return cmn.NewPipelineError(cmn.ErrMissingArgs, "target-account given without target-container")
		}
		if *req.TargetContainer == unknownCont.Name {
			return cmn.NewPipelineError(cmn.ErrInvalidContainer, "target-container is the unknown container")
		}
		cont, ok = dir.LookupContainerByName(acct.ID, *req.TargetContainer)
		if !ok {
			return cmn.NewPipelineError(cmn.ErrInvalidContainer, "unknown container: "+*req.TargetContainer)
		}
	}

	ctx.SetArg(ArgTargetAccount, acct)
	ctx.SetArg(ArgTargetContainer, cont)
	return nil
}

// injectViaServiceID implements the legacy/default injection branch of
// §4.1 rule 2 (no target-account, no target-container header): default to
// the unknown account and its privacy-appropriate legacy container, then
// let the service-id header, interpreted as a candidate account name,
// override that default.
func injectViaServiceID(dir accountdir.Directory, req *Request, unknownAcct cmn.Account) (cmn.Account, cmn.Container, error) {
	if req.ServiceID == unknownAcct.Name {
		return cmn.Account{}, cmn.Container{}, cmn.NewPipelineError(cmn.ErrInvalidAccount, "service-id names the unknown account")
	}
	realAcct, ok := dir.LookupAccountByName(req.ServiceID)
	if !ok {
		acct, cont := defaultUnknownInjection(dir, unknownAcct, req.Private)
		return acct, cont, nil
	}
	if legacy, ok := dir.LegacyContainer(realAcct.ID, req.Private); ok {
		return realAcct, legacy, nil
	}
	// Open question (§9): this silently discards the service-id-named
	// account and falls back to unknown rather than failing. Retained
	// verbatim.
	acct, cont := defaultUnknownInjection(dir, unknownAcct, req.Private)
	return acct, cont, nil
}

func defaultUnknownInjection(dir accountdir.Directory, unknownAcct cmn.Account, private bool) (cmn.Account, cmn.Container) {
	if legacy, ok := dir.LegacyContainer(unknownAcct.ID, private); ok {
		return unknownAcct, legacy
	}
	return unknownAcct, dir.UnknownContainer()
}
