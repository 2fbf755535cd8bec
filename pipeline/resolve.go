package pipeline

import "github.com/ambrystore/frontend/cmn"

// resolveAccountContainer implements §4.1's GET/HEAD/DELETE
// account/container resolution: the pair is read off the decoded BlobId
// rather than injected from headers the way POST does it.
func (p *Pipeline) resolveAccountContainer(ctx *Context) error {
	id, err := cmn.DecodeBlobID(ctx.ResolvedBlobIDString)
	if err != nil {
		return cmn.NewPipelineError(cmn.ErrBadRequest, "invalid blob id", err)
	}

	if id.AccountID == cmn.UnknownID && id.ContainerID == cmn.UnknownID {
		ctx.SetArg(ArgTargetAccount, p.dir.UnknownAccount())
		ctx.SetArg(ArgTargetContainer, p.dir.UnknownContainer())
		return nil
	}
	if id.AccountID == cmn.UnknownID {
		return cmn.NewPipelineError(cmn.ErrInvalidContainer, "container id set without a known account id")
	}
	acct, ok := p.dir.LookupAccountByID(id.AccountID)
	if !ok {
		return cmn.NewPipelineError(cmn.ErrInvalidAccount, "unknown account id")
	}
	if id.ContainerID == cmn.UnknownID {
		return cmn.NewPipelineError(cmn.ErrInvalidContainer, "container id is the unknown sentinel")
	}
	cont, ok := p.dir.LookupContainerByID(acct.ID, id.ContainerID)
	if !ok {
		return cmn.NewPipelineError(cmn.ErrInvalidContainer, "container not found in account")
	}
	ctx.SetArg(ArgTargetAccount, acct)
	ctx.SetArg(ArgTargetContainer, cont)
	return nil
}
